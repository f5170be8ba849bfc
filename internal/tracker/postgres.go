package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/cuongbtq/media-conversor/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const schema = `
	CREATE TABLE IF NOT EXISTS job_status (
		job_id     UUID PRIMARY KEY,
		status     TEXT NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		detail     TEXT NOT NULL DEFAULT '',
		result     JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// statusRow is the job_status table row
type statusRow struct {
	JobID     string         `db:"job_id"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	Detail    string         `db:"detail"`
	Result    types.JSONText `db:"result"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// PostgresStore is a Store shared by every API replica
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a store on the client's connection pool
func NewPostgresStore(pg *postgresql.Client) *PostgresStore {
	return &PostgresStore{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the job_status table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create job_status table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, rec domain.StatusRecord) (bool, error) {
	result := rec.Result
	if result == nil {
		result = map[string]string{}
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("failed to encode status result: %w", err)
	}

	// mirrors supersedes and progress
	query := `
		INSERT INTO job_status (
			job_id, status, attempts, detail, result, updated_at
		) VALUES (
			:job_id, :status, :attempts, :detail, :result, :updated_at
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			detail = EXCLUDED.detail,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at
		WHERE (
				job_status.status IN ('completed', 'failed')
				AND EXCLUDED.status = 'queued'
				AND EXCLUDED.updated_at > job_status.updated_at
			) OR (
				job_status.status NOT IN ('completed', 'failed')
				AND (
					EXCLUDED.status IN ('completed', 'failed')
					OR (
						EXCLUDED.attempts * 2 + CASE WHEN EXCLUDED.status = 'processing' THEN 1 ELSE 0 END,
						EXCLUDED.updated_at
					) >= (
						job_status.attempts * 2 + CASE WHEN job_status.status = 'processing' THEN 1 ELSE 0 END,
						job_status.updated_at
					)
				)
			)
	`

	res, err := s.db.NamedExecContext(ctx, query, statusRow{
		JobID:     rec.JobID,
		Status:    string(rec.Status),
		Attempts:  rec.Attempts,
		Detail:    rec.Detail,
		Result:    types.JSONText(encoded),
		UpdatedAt: rec.Timestamp,
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (domain.StatusRecord, error) {
	var row statusRow
	query := `
		SELECT
			job_id, status, attempts, detail, result, updated_at
		FROM job_status
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &row, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusRecord{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.StatusRecord{}, fmt.Errorf("failed to get job status: %w", err)
	}

	rec := domain.StatusRecord{
		JobID:     row.JobID,
		Status:    domain.Status(row.Status),
		Timestamp: row.UpdatedAt,
		Attempts:  row.Attempts,
		Detail:    row.Detail,
	}

	var result map[string]string
	if err := row.Result.Unmarshal(&result); err != nil {
		return domain.StatusRecord{}, fmt.Errorf("failed to decode status result: %w", err)
	}
	if len(result) > 0 {
		rec.Result = result
	}
	return rec, nil
}
