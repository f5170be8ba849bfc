// Package notify sends download links to users once a conversion completes.
// When no SMTP host is configured a noop implementation is used.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

var sendMail = smtp.SendMail

// Notifier delivers conversion results to users
type Notifier interface {
	SendConversionLink(ctx context.Context, email, downloadURL string) error
}

// Config holds SMTP configuration
type Config struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
}

// New returns an SMTP notifier, or a noop notifier when SMTPHost is empty
func New(cfg Config) Notifier {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		return noopNotifier{}
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	return &smtpNotifier{
		addr: net.JoinHostPort(host, strconv.Itoa(cfg.SMTPPort)),
		auth: auth,
		from: from,
	}
}

type smtpNotifier struct {
	addr string
	auth smtp.Auth
	from string
}

func (n *smtpNotifier) SendConversionLink(ctx context.Context, email, downloadURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid recipient address %q", email)
	}

	if err := sendMail(n.addr, n.auth, n.from, []string{email}, conversionMessage(n.from, email, downloadURL)); err != nil {
		return fmt.Errorf("failed to send conversion email: %w", err)
	}
	return nil
}

func conversionMessage(from, to, downloadURL string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Your converted file is ready\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your file was converted successfully. Download it here:\r\n\r\n")
	b.WriteString(downloadURL + "\r\n")
	return []byte(b.String())
}

type noopNotifier struct{}

func (noopNotifier) SendConversionLink(context.Context, string, string) error {
	return nil
}
