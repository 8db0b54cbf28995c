package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/custos-io/custos/internal/config"
	"github.com/custos-io/custos/internal/domain"
)

const defaultDialTimeout = 30 * time.Second

// SMTP delivers notification jobs as email. Dial, handshake, and send all run
// under the caller's context deadline; a stuck server trips the timeout and
// surfaces as a transient error.
type SMTP struct {
	cfg config.NotificationConfig
}

func NewSMTP(cfg config.NotificationConfig) *SMTP {
	return &SMTP{cfg: cfg}
}

func (s *SMTP) Deliver(ctx context.Context, job domain.NotificationJob) error {
	recipients := job.Recipients
	if len(recipients) == 0 {
		recipients = s.cfg.DefaultRecipients
	}
	if len(recipients) == 0 {
		// No one to deliver to; retrying cannot fix this.
		return errors.New("no recipients configured")
	}

	msg, err := buildMessage(s.cfg.From, recipients, job)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	if err := s.send(ctx, recipients, msg); err != nil {
		return classify(err)
	}
	return nil
}

func (s *SMTP) send(ctx context.Context, recipients []string, msg []byte) error {
	address := net.JoinHostPort(s.cfg.SMTPHost, fmt.Sprintf("%d", s.cfg.SMTPPort))

	conn, err := s.dial(ctx, address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() {
		_ = client.Quit()
		_ = conn.Close()
	}()

	if s.cfg.UseStartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if rcpt == "" {
			continue
		}
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return nil
}

func (s *SMTP) dial(ctx context.Context, address string) (net.Conn, error) {
	var dialer net.Dialer
	if deadline, ok := ctx.Deadline(); ok {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		_ = conn.SetDeadline(deadline)
		return conn, nil
	}
	return net.DialTimeout("tcp", address, defaultDialTimeout)
}

// classify splits delivery failures into transient (retried) and permanent.
// Network errors and 4xx SMTP replies are transient; 5xx replies and
// everything else are permanent.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.MarkTransient(err)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return domain.MarkTransient(err)
		}
		return err
	}

	return err
}
