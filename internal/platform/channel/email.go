package channel

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const (
	maxAttachmentBytes = 10 * 1024 * 1024
	smtpConnectTimeout = 10 * time.Second
	smtpSessionTimeout = 30 * time.Second
)

// Naive tag stripper for the plain-text alternative part.
var htmlTagRegex = regexp.MustCompile(`<[^<]+?>`)

// SMTPConfig carries the SMTP connection settings. The adapter goes through
// a real SMTP session only when Host, Username, and Password are all set;
// otherwise sends are mocked as immediately queued.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	StartTLS bool
}

// Configured reports whether the settings are complete enough for a real
// SMTP session.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// Sender returns the From address, falling back to the username and then
// to a placeholder.
func (c SMTPConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	if c.Username != "" {
		return c.Username
	}
	return "no-reply@example.com"
}

// EmailAdapter sends multipart email over SMTP when configured, with a
// plain-text fallback generated from the HTML body. SPF/DKIM headers are
// placeholders, not real signatures.
type EmailAdapter struct {
	AddSPFHeader  bool
	AddDKIMHeader bool

	cfg  SMTPConfig
	send func(cfg SMTPConfig, to string, msg []byte) error
}

// NewEmailAdapter creates the adapter. Placeholder auth headers are on by
// default.
func NewEmailAdapter(cfg SMTPConfig) *EmailAdapter {
	return &EmailAdapter{
		AddSPFHeader:  true,
		AddDKIMHeader: true,
		cfg:           cfg,
		send:          smtpSend,
	}
}

func (a *EmailAdapter) Name() string { return "email" }

func (a *EmailAdapter) Send(ctx context.Context, req Request, rendered Rendered) (*Result, error) {
	start := time.Now()

	subject := ""
	if rendered.Subject != nil {
		subject = strings.TrimSpace(*rendered.Subject)
	}
	if subject == "" {
		subject = "(no subject)"
	}
	body := strings.TrimSpace(rendered.Body)

	if !strings.Contains(req.Recipient, "@") {
		return nil, NewPermanent("Invalid email recipient")
	}

	if total := attachmentBytes(req.Metadata); total > maxAttachmentBytes {
		return nil, NewPermanent("Attachments exceed 10MB total size limit")
	}

	if !a.cfg.Configured() {
		return &Result{
			Provider:  "mock",
			LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
			Extra:     map[string]interface{}{"message": "queued"},
		}, nil
	}

	extra := map[string]string{}
	if a.AddSPFHeader {
		extra["Received-SPF"] = "pass (placeholder)"
	}
	if a.AddDKIMHeader {
		extra["DKIM-Signature"] = "v=1; a=rsa-sha256; d=example.com; s=default; (placeholder)"
	}

	msg, err := buildEmail(a.cfg.Sender(), req.Recipient, subject, extra, body)
	if err != nil {
		return nil, NewTransient("SMTP send failed: %v", err)
	}
	if err := a.send(a.cfg, req.Recipient, msg); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return nil, NewTransient("SMTP error: %v", err)
		}
		return nil, NewTransient("SMTP send failed: %v", err)
	}

	return &Result{
		Provider:  "smtp",
		LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
	}, nil
}

// attachmentBytes sums the declared sizes under metadata["attachments"].
// Attachment content is never stored here; only the declared sizes are
// validated.
func attachmentBytes(metadata map[string]interface{}) int64 {
	if metadata == nil {
		return 0
	}
	attachments, ok := metadata["attachments"].(map[string]interface{})
	if !ok {
		return 0
	}
	var total int64
	for _, raw := range attachments {
		meta, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		switch size := meta["size"].(type) {
		case float64:
			total += int64(size)
		case int:
			total += int64(size)
		case int64:
			total += size
		case string:
			if n, err := strconv.ParseInt(size, 10, 64); err == nil {
				total += n
			}
		}
	}
	return total
}

// buildEmail composes a multipart/alternative message with a text part
// derived from the HTML body by stripping tags.
func buildEmail(from, to, subject string, extraHeaders map[string]string, htmlBody string) ([]byte, error) {
	plain := htmlTagRegex.ReplaceAllString(htmlBody, "")
	if plain == "" {
		plain = "(empty)"
	}
	if htmlBody == "" {
		htmlBody = "<p>(empty)</p>"
	}

	var body bytes.Buffer
	mw := textproto.NewMultipartWriter(&body)

	header := textproto.Header{}
	header.Add("Date", time.Now().Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	header.Add("MIME-Version", "1.0")
	header.Add("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	header.Add("From", from)
	header.Add("To", to)
	header.Add("Subject", subject)
	for k, v := range extraHeaders {
		header.Add(k, v)
	}

	textHeader := textproto.Header{}
	textHeader.Add("Content-Transfer-Encoding", "8bit")
	textHeader.Add("Content-Type", `text/plain; charset="utf-8"`)
	tw, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, plain); err != nil {
		return nil, err
	}

	htmlHeader := textproto.Header{}
	htmlHeader.Add("Content-Transfer-Encoding", "8bit")
	htmlHeader.Add("Content-Type", `text/html; charset="utf-8"`)
	hw, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(hw, htmlBody); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	if err := textproto.WriteHeader(&msg, header); err != nil {
		return nil, err
	}
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// smtpSend runs one SMTP session: connect, optional STARTTLS, AUTH PLAIN,
// MAIL/RCPT/DATA, QUIT.
func smtpSend(cfg SMTPConfig, to string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, smtpConnectTimeout)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(smtpSessionTimeout))

	cl, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer cl.Close()

	if cfg.StartTLS || cfg.UseTLS {
		if err := cl.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return err
		}
	}
	if err := cl.Auth(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
		return err
	}
	if err := cl.Mail(cfg.Sender(), nil); err != nil {
		return err
	}
	if err := cl.Rcpt(to); err != nil {
		return err
	}
	wc, err := cl.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return cl.Quit()
}
