package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/spf13/cobra"
)

func newTopologyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Declare the broker topology and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				t := s.topology
				rows := [][]string{
					{"work queue", t.WorkQueue},
					{"status queue", t.StatusQueue},
					{"retry exchange", t.RetryExchange},
					{"dead-letter exchange", t.DeadLetterExchange},
					{"dead-letter queue", t.DeadLetterQueue},
				}
				for i, d := range t.RetryDelays {
					rows = append(rows, []string{"retry queue " + strconv.Itoa(i), fmt.Sprintf("%s (%s)", t.RetryQueueName(i), d)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Object", "Name"}, rows, nil))
				return nil
			})
		},
	}
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var inputRef, format, email string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a conversion for an object already in the upload bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(inputRef) == "" {
				return fmt.Errorf("--input-ref is required")
			}
			outputFormat, err := domain.ParseFormat(format)
			if err != nil {
				return err
			}

			req := domain.ConversionRequest{
				InputRef:     inputRef,
				OutputFormat: outputFormat,
				Metadata:     map[string]string{},
			}
			if email != "" {
				req.Metadata[domain.MetadataEmail] = email
			}

			return ctx.withSession(func(s *session) error {
				jobID, err := s.producer.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&inputRef, "input-ref", "", "Object key of the input in the upload bucket")
	cmd.Flags().StringVar(&format, "format", "", "Output format (mp3, mp4, avi, wav)")
	cmd.Flags().StringVar(&email, "email", "", "Address notified when the conversion completes")

	return cmd
}

func newDLQCommand(ctx *commandContext) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and manage the dead-letter queue",
	}

	dlqCmd.AddCommand(newDLQListCommand(ctx))
	dlqCmd.AddCommand(newDLQRequeueCommand(ctx))
	dlqCmd.AddCommand(newDLQPurgeCommand(ctx))

	return dlqCmd
}

func newDLQListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs without removing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				entries, err := s.deadLetters.List(limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Dead-letter queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"Job ID", "Format", "Attempts", "Submitted", "Last Error"},
					buildDeadLetterRows(entries),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show (0 for all)")

	return cmd
}

func newDLQRequeueCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Move dead-lettered jobs back to the work queue with attempts reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				n, err := s.deadLetters.Requeue(cmd.Context(), limit)
				if n > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d jobs\n", n)
				}
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs to requeue")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to requeue (0 for all)")

	return cmd
}

func newDLQPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every message in the dead-letter queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(func(s *session) error {
				n, err := s.deadLetters.Purge()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d messages\n", n)
				return nil
			})
		},
	}
}

func buildDeadLetterRows(entries []pipeline.DeadLetter) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Err != nil {
			rows = append(rows, []string{"(malformed)", "", "", "", entry.Err.Error()})
			continue
		}
		env := entry.Envelope
		submitted := ""
		if !env.SubmittedAt.IsZero() {
			submitted = env.SubmittedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			env.JobID,
			string(env.OutputFormat),
			strconv.Itoa(env.Attempts),
			submitted,
			env.LastError,
		})
	}
	return rows
}
