package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/sony/gobreaker"

	"github.com/keyxmakerx/wayfarer/internal/config"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// breakerFailures is how many consecutive delivery failures open the
// breaker. While open, sends fail at once instead of waiting on a dead
// server for the full timeout.
const breakerFailures = 5

// Notifier implements auth.Notifier over a Transport.
type Notifier struct {
	transport Transport
	from      mail.Address
	resetTTL  time.Duration
	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time
}

var _ auth.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier. resetTTL is quoted in reset emails.
func NewNotifier(transport Transport, cfg config.MailConfig, resetTTL time.Duration) *Notifier {
	return &Notifier{
		transport: transport,
		from:      mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		resetTTL:  resetTTL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "smtp",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			// An unconfigured server is not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotConfigured)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
		now: time.Now,
	}
}

// SendWelcome mails the welcome message.
func (n *Notifier) SendWelcome(ctx context.Context, p *auth.Principal, url string) error {
	return n.send(ctx, Message{
		From:    n.from,
		To:      mail.Address{Name: p.Name, Address: p.Email},
		Subject: "Welcome to Wayfarer!",
		Text:    welcomeText(p.Name, url),
		HTML:    WelcomeEmail(p.Name, url),
	})
}

// SendPasswordReset mails the reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, p *auth.Principal, url string) error {
	return n.send(ctx, Message{
		From:    n.from,
		To:      mail.Address{Name: p.Name, Address: p.Email},
		Subject: fmt.Sprintf("Your password reset token (valid for %s)", humanDuration(n.resetTTL)),
		Text:    resetText(p.Name, url, n.resetTTL),
		HTML:    PasswordResetEmail(p.Name, url, n.resetTTL),
	})
}

func (n *Notifier) send(ctx context.Context, msg Message) error {
	body, err := msg.Render(ctx, n.now())
	if err != nil {
		return err
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.transport.Send(ctx, msg.From.Address, []string{msg.To.Address}, body)
	})
	if err != nil {
		return fmt.Errorf("sending %q: %w", msg.Subject, err)
	}
	return nil
}
