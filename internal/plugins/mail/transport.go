// Package mail delivers Wayfarer's out-of-band notifications (welcome and
// password reset messages) over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	gosmtp "net/smtp"
	"strconv"
	"time"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp is not configured")

// Transport hands a rendered message to a mail server.
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPTransport sends through one SMTP server using the configured
// encryption mode. Every network step is bounded by the context deadline.
type SMTPTransport struct {
	cfg config.MailConfig
}

// NewSMTPTransport creates a transport from the mail settings.
func NewSMTPTransport(cfg config.MailConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send delivers msg to every recipient.
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if t.cfg.Host == "" {
		return ErrNotConfigured
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// net/smtp has no context support; a deadline on the socket is the
	// only way to stop a stalled server.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	client, err := gosmtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if t.cfg.Encryption == "starttls" {
		if err := client.StartTLS(t.tlsConfig()); err != nil {
			return fmt.Errorf("starting TLS: %w", err)
		}
	}

	if t.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	return sendMessage(client, from, to, msg)
}

// dial opens the connection, wrapping it in TLS for implicit-TLS servers
// (port 465 typical).
func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	if t.cfg.Encryption == "ssl" {
		td := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s (SSL): %w", addr, err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}
