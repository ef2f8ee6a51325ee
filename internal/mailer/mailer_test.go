package mailer

import (
	"context"
	"testing"
	"time"
)

func TestIsHTMLContent(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"DoctypeHTML", "<!DOCTYPE html>\n<html><body>hi</body></html>", true},
		{"LeadingWhitespaceDoctype", "  \n<!DOCTYPE html><html></html>", true},
		{"BareHTMLTag", "<html><body>hi</body></html>", true},
		{"HTMLDocumentWithoutDOCTYPE", "plain text with <html> mentioned inline", false},
		{"PlainText", "just a plain message\nwith lines", false},
		{"Empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isHTMLContent(tc.body); got != tc.want {
				t.Errorf("isHTMLContent(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestNewlineToBrTag(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"Unix", "a\nb", "a<br />b"},
		{"Windows", "a\r\nb", "a<br />b"},
		{"OldMac", "a\rb", "a<br />b"},
		{"LiteralEscaped", `a\nb`, "a<br />b"},
		{"NoNewlines", "abc", "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := newlineToBrTag(tc.input); got != tc.want {
				t.Errorf("newlineToBrTag(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestProcessEmailBody(t *testing.T) {
	require := func(cond bool, msg string) {
		if !cond {
			t.Error(msg)
		}
	}

	plain := processEmailBody("line one\nline two")
	require(plain == "line one<br />line two", "plain text body should have newlines converted")

	html := "<!DOCTYPE html><html><body>line one\nline two</body></html>"
	got := processEmailBody(html)
	require(got == html, "HTML body should pass through unchanged")
}

func TestMailerRoutesByCredentials(t *testing.T) {
	noAuth := New(Config{Host: "127.0.0.1", Port: "1"})
	if noAuth.Config.Username != "" {
		t.Fatal("expected no username configured")
	}

	withAuth := New(Config{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p"})
	if withAuth.Config.Username == "" {
		t.Fatal("expected username configured")
	}
}

func TestMailerSendTimesOutOnUnreachableHost(t *testing.T) {
	original := mailTimeout
	mailTimeout = 50 * time.Millisecond
	defer func() { mailTimeout = original }()

	m := New(Config{Host: "203.0.113.1", Port: "25"})
	err := m.Send(context.Background(), "from@example.com", []string{"to@example.com"}, "subject", "body", nil)
	if err == nil {
		t.Fatal("expected error dialing unreachable host")
	}
}
