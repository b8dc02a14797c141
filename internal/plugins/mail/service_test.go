package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/wayfarer/internal/config"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
)

// fakeTransport records sends and returns err.
type fakeTransport struct {
	err   error
	calls int
	from  string
	to    []string
	msg   string
}

func (f *fakeTransport) Send(_ context.Context, from string, to []string, msg []byte) error {
	f.calls++
	f.from = from
	f.to = to
	f.msg = string(msg)
	return f.err
}

func newTestNotifier(tr Transport) *Notifier {
	n := NewNotifier(tr, config.MailConfig{FromName: "Wayfarer", FromAddress: "no-reply@wayfarer.test"}, 10*time.Minute)
	n.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return n
}

var testPrincipal = &auth.Principal{ID: "u1", Email: "ada@example.com", Name: "Ada"}

func TestSendPasswordReset_RendersBothParts(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)

	err := n.SendPasswordReset(context.Background(), testPrincipal, "https://wayfarer.test/auth/reset-password/abc")
	require.NoError(t, err)

	assert.Equal(t, "no-reply@wayfarer.test", tr.from)
	assert.Equal(t, []string{"ada@example.com"}, tr.to)
	assert.Contains(t, tr.msg, "multipart/alternative")
	assert.Contains(t, tr.msg, "text/plain")
	assert.Contains(t, tr.msg, "text/html")
	assert.Contains(t, tr.msg, "Subject: Your password reset token (valid for 10 minutes)")
}

func TestSendWelcome_PropagatesFailure(t *testing.T) {
	tr := &fakeTransport{err: errors.New("connection refused")}
	n := newTestNotifier(tr)

	err := n.SendWelcome(context.Background(), testPrincipal, "https://wayfarer.test/users/me")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	tr := &fakeTransport{err: errors.New("timeout")}
	n := newTestNotifier(tr)
	ctx := context.Background()

	for i := 0; i < breakerFailures; i++ {
		require.Error(t, n.SendWelcome(ctx, testPrincipal, "u"))
	}
	require.Equal(t, breakerFailures, tr.calls)

	err := n.SendWelcome(ctx, testPrincipal, "u")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, breakerFailures, tr.calls, "open breaker must not reach the transport")
}

func TestNotConfiguredDoesNotTripBreaker(t *testing.T) {
	tr := &fakeTransport{err: ErrNotConfigured}
	n := newTestNotifier(tr)

	for i := 0; i < breakerFailures+2; i++ {
		assert.ErrorIs(t, n.SendWelcome(context.Background(), testPrincipal, "u"), ErrNotConfigured)
	}
	assert.Equal(t, breakerFailures+2, tr.calls)
}

func TestSMTPTransport_NotConfigured(t *testing.T) {
	tr := NewSMTPTransport(config.MailConfig{})
	err := tr.Send(context.Background(), "a@b.c", []string{"d@e.f"}, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "10 minutes", humanDuration(10*time.Minute))
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "2 hours", humanDuration(2*time.Hour))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
}

func TestWelcomeEmail_Escapes(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WelcomeEmail("Ada <script>", `https://x.test/"onmouseover`).Render(context.Background(), &sb))
	assert.NotContains(t, sb.String(), `"onmouseover`)
	assert.NotContains(t, sb.String(), "<script>")
	assert.Contains(t, sb.String(), "&lt;script&gt;")
}
