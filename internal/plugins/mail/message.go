package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"time"

	"github.com/a-h/templ"
)

// Message is one outgoing email with a text and an HTML part.
type Message struct {
	From    mail.Address
	To      mail.Address
	Subject string
	Text    string
	HTML    templ.Component
}

// Render builds the RFC 5322 message as multipart/alternative.
func (m Message) Render(ctx context.Context, now time.Time) ([]byte, error) {
	var html bytes.Buffer
	if err := m.HTML.Render(ctx, &html); err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From.String())
	fmt.Fprintf(&buf, "To: %s\r\n", m.To.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	if err := writePart(mw, "text/plain; charset=UTF-8", []byte(m.Text)); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=UTF-8", html.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart: %w", err)
	}

	return buf.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType string, body []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write(body); err != nil {
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return qp.Close()
}
