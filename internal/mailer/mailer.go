// Package mailer sends completion notifications over SMTP (spec.md's
// "external mailer" used by the Execution Engine's email_on_completion
// path), grounded on the teacher's own hand-rolled net/smtp mailer rather
// than a third-party mail library.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"regexp"
	"strings"
	"time"
)

// mailTimeout bounds how long a single send attempt (dial + SMTP session)
// may take. Overridable in tests.
var mailTimeout = 30 * time.Second

// Config configures a Mailer.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
}

// Attachment is a named byte payload attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer sends email over SMTP, with or without AUTH depending on whether
// credentials are configured.
type Mailer struct {
	Config Config
}

// New creates a Mailer.
func New(cfg Config) *Mailer {
	return &Mailer{Config: cfg}
}

// Send delivers an email, routing to sendWithAuth when credentials are
// configured and sendWithNoAuth otherwise.
func (m *Mailer) Send(ctx context.Context, from string, to []string, subject, body string, attachments []Attachment) error {
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		var err error
		if m.Config.Username != "" {
			err = m.sendWithAuth(from, to, subject, body, attachments)
		} else {
			err = m.sendWithNoAuth(from, to, subject, body, attachments)
		}
		done <- result{err}
	}()

	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) addr() string {
	return net.JoinHostPort(m.Config.Host, m.Config.Port)
}

func (m *Mailer) sendWithNoAuth(from string, to []string, subject, body string, attachments []Attachment) error {
	conn, err := net.DialTimeout("tcp", m.addr(), mailTimeout)
	if err != nil {
		return fmt.Errorf("mailer: dial: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(mailTimeout))

	client, err := smtp.NewClient(conn, m.Config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: new client: %w", err)
	}
	defer client.Close()

	return deliver(client, from, to, buildMessage(from, to, subject, body, attachments))
}

func (m *Mailer) sendWithAuth(from string, to []string, subject, body string, attachments []Attachment) error {
	conn, err := net.DialTimeout("tcp", m.addr(), mailTimeout)
	if err != nil {
		return fmt.Errorf("mailer: dial: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(mailTimeout))

	client, err := smtp.NewClient(conn, m.Config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: new client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("mailer: auth: %w", err)
	}

	return deliver(client, from, to, buildMessage(from, to, subject, body, attachments))
}

func deliver(client *smtp.Client, from string, to []string, message []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mailer: MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("mailer: RCPT TO %s: %w", addr, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mailer: DATA: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		_ = w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: close data: %w", err)
	}
	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string, attachments []Attachment) []byte {
	contentType := "text/plain; charset=\"UTF-8\""
	if isHTMLContent(body) {
		contentType = "text/html; charset=\"UTF-8\""
	}
	body = processEmailBody(body)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", contentType)
	buf.WriteString(body)
	for _, a := range attachments {
		buf.WriteString("\r\n--attachment-boundary\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename)
		buf.Write(a.Data)
	}
	return buf.Bytes()
}

var htmlDoctypeOrTagPrefix = regexp.MustCompile(`(?i)^\s*<(!doctype html|html)[\s>]`)

// isHTMLContent reports whether body looks like an HTML document: it must
// begin (after leading whitespace) with a <!DOCTYPE html> or <html> tag, not
// merely contain angle brackets somewhere in the text.
func isHTMLContent(body string) bool {
	return htmlDoctypeOrTagPrefix.MatchString(body)
}

var newlineVariant = regexp.MustCompile(`\\r\\n|\\n|\\r|\r\n|\n|\r`)

// newlineToBrTag converts every newline variant (Unix, Windows, old Mac,
// and literal backslash-escaped sequences) into an HTML line break.
func newlineToBrTag(s string) string {
	return newlineVariant.ReplaceAllString(s, "<br />")
}

// processEmailBody applies newlineToBrTag to plain-text bodies only; HTML
// bodies are passed through unchanged since they already carry their own
// markup for line breaks.
func processEmailBody(body string) string {
	if isHTMLContent(body) {
		return body
	}
	return newlineToBrTag(body)
}
