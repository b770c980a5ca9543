package channel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// helper: configured email adapter with a captured transport.
func newTestEmail(sendErr error) (*EmailAdapter, *[]byte) {
	a := NewEmailAdapter(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "alerts@example.com",
		StartTLS: true,
	})
	var captured []byte
	a.send = func(cfg SMTPConfig, to string, msg []byte) error {
		captured = append([]byte(nil), msg...)
		return sendErr
	}
	return a, &captured
}

func TestEmail_InvalidRecipientPermanent(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	_, err := a.Send(context.Background(), Request{Recipient: "not-an-email"}, Rendered{Body: "hi"})
	if err == nil || !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if err.Error() != "Invalid email recipient" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestEmail_AttachmentsOverLimitPermanent(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	req := Request{
		Recipient: "user@example.com",
		Metadata: map[string]interface{}{
			"attachments": map[string]interface{}{
				"report.pdf": map[string]interface{}{"size": float64(6 * 1024 * 1024)},
				"data.csv":   map[string]interface{}{"size": float64(5 * 1024 * 1024)},
			},
		},
	}
	_, err := a.Send(context.Background(), req, Rendered{Body: "hi"})
	if err == nil || !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if err.Error() != "Attachments exceed 10MB total size limit" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestEmail_AttachmentsAtLimitAllowed(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	req := Request{
		Recipient: "user@example.com",
		Metadata: map[string]interface{}{
			"attachments": map[string]interface{}{
				"report.pdf": map[string]interface{}{"size": float64(10 * 1024 * 1024)},
			},
		},
	}
	if _, err := a.Send(context.Background(), req, Rendered{Body: "hi"}); err != nil {
		t.Fatalf("expected 10MB exactly to pass, got %v", err)
	}
}

func TestEmail_UnconfiguredMocksDelivery(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	res, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{Body: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "mock" {
		t.Errorf("expected provider mock, got %q", res.Provider)
	}
	if res.Extra["message"] != "queued" {
		t.Errorf("expected queued message, got %v", res.Extra)
	}
}

func TestEmail_ConfiguredSendsMultipart(t *testing.T) {
	a, captured := newTestEmail(nil)

	res, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{
		Subject: strptr("Monthly report"),
		Body:    "<h1>Hi</h1><p>All good.</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != "smtp" {
		t.Errorf("expected provider smtp, got %q", res.Provider)
	}

	msg := string(*captured)
	for _, want := range []string{
		"From: alerts@example.com",
		"To: user@example.com",
		"Subject: Monthly report",
		"Received-SPF: pass (placeholder)",
		"DKIM-Signature: v=1; a=rsa-sha256; d=example.com; s=default; (placeholder)",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"<h1>Hi</h1><p>All good.</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q", want)
		}
	}
	// The plain part is the HTML body with tags stripped.
	if !strings.Contains(msg, "HiAll good.") {
		t.Errorf("expected tag-stripped plain part, got:\n%s", msg)
	}
}

func TestEmail_BlankSubjectDefaults(t *testing.T) {
	a, captured := newTestEmail(nil)
	_, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{Body: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(*captured), "Subject: (no subject)") {
		t.Error("expected default subject")
	}
}

func TestEmail_EmptyBodyPlaceholders(t *testing.T) {
	a, captured := newTestEmail(nil)
	_, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{Body: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := string(*captured)
	if !strings.Contains(msg, "(empty)") {
		t.Error("expected plain placeholder for empty body")
	}
	if !strings.Contains(msg, "<p>(empty)</p>") {
		t.Error("expected HTML placeholder for empty body")
	}
}

func TestEmail_PlaceholderHeadersCanBeDisabled(t *testing.T) {
	a, captured := newTestEmail(nil)
	a.AddSPFHeader = false
	a.AddDKIMHeader = false

	_, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{Body: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := string(*captured)
	if strings.Contains(msg, "Received-SPF") || strings.Contains(msg, "DKIM-Signature") {
		t.Error("expected placeholder headers omitted when disabled")
	}
}

func TestEmail_SendFailureTransient(t *testing.T) {
	a, _ := newTestEmail(errors.New("connection refused"))
	_, err := a.Send(context.Background(), Request{Recipient: "user@example.com"}, Rendered{Body: "hi"})
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "SMTP send failed") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
