package mail

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// layout wraps a message body in the shared HTML shell.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+`</title></head>`+
			`<body style="font-family:sans-serif;line-height:1.5;color:#222">`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<p style="color:#888;font-size:12px">Wayfarer</p></body></html>`)
		return err
	})
}

// button renders a call-to-action link.
func button(url, label string) string {
	return `<p><a href="` + templ.EscapeString(url) +
		`" style="display:inline-block;padding:10px 18px;background:#55c57a;color:#fff;text-decoration:none;border-radius:4px">` +
		templ.EscapeString(label) + `</a></p>`
}

// WelcomeEmail greets a new principal and links to their account.
func WelcomeEmail(name, accountURL string) templ.Component {
	return layout("Welcome to Wayfarer", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<p>Hi `+templ.EscapeString(name)+`,</p>`+
				`<p>Welcome to Wayfarer, we're glad to have you.</p>`+
				button(accountURL, "Open your account"))
		return err
	}))
}

// PasswordResetEmail carries the reset link. The link is the secret.
func PasswordResetEmail(name, resetURL string, validFor time.Duration) templ.Component {
	return layout("Reset your password", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<p>Hi `+templ.EscapeString(name)+`,</p>`+
				`<p>Forgot your password? Use the link below to choose a new one. `+
				`It is valid for `+templ.EscapeString(humanDuration(validFor))+`.</p>`+
				button(resetURL, "Reset your password")+
				`<p>If you didn't ask for this, ignore this email.</p>`)
		return err
	}))
}

// welcomeText is the plain-text alternative of WelcomeEmail.
func welcomeText(name, accountURL string) string {
	return fmt.Sprintf("Hi %s,\n\nWelcome to Wayfarer, we're glad to have you.\n\nYour account: %s\n", name, accountURL)
}

// resetText is the plain-text alternative of PasswordResetEmail.
func resetText(name, resetURL string, validFor time.Duration) string {
	return fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new password and "+
		"passwordConfirm to:\n%s\n\nThe link is valid for %s. If you didn't ask for this, ignore this email.\n",
		name, resetURL, humanDuration(validFor))
}

func humanDuration(d time.Duration) string {
	unit, n := "minute", int(d.Round(time.Minute)/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int(d/time.Hour)
	}
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
