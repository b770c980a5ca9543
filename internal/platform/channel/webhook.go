package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webhookTimeout      = 10 * time.Second
	webhookBodySnippet  = 200
	webhookMaxReadBytes = 4096
)

// WebhookAdapter delivers notifications as an HTTP POST of a JSON envelope.
// Response classes map directly onto the retry contract: 2xx success,
// 4xx permanent, 5xx and network trouble transient.
type WebhookAdapter struct {
	UserAgent string

	client *http.Client
}

// NewWebhookAdapter creates the adapter with a 10 s request timeout and
// TLS verification on.
func NewWebhookAdapter() *WebhookAdapter {
	return &WebhookAdapter{
		UserAgent: "notifyd/0.1",
		client:    &http.Client{Timeout: webhookTimeout},
	}
}

func (a *WebhookAdapter) Name() string { return "webhook" }

func (a *WebhookAdapter) Send(ctx context.Context, req Request, rendered Rendered) (*Result, error) {
	target := strings.ToLower(req.Recipient)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, NewPermanent("Webhook recipient must be a valid URL")
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"channel":  "webhook",
		"subject":  rendered.Subject,
		"body":     rendered.Body,
		"metadata": metadata,
	})
	if err != nil {
		return nil, NewPermanent("Webhook payload not serializable: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Recipient, bytes.NewReader(payload))
	if err != nil {
		return nil, NewPermanent("Webhook recipient must be a valid URL")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", a.UserAgent)
	for k, v := range MetadataHeaders(req.Metadata) {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, NewTransient("Webhook timeout after %s", webhookTimeout)
		}
		return nil, NewTransient("Webhook HTTP error: %v", err)
	}
	defer resp.Body.Close()
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Result{
			Provider:   "http",
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
		}, nil
	}

	snippet := readSnippet(resp.Body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &PermanentError{
			Reason:     fmt.Sprintf("Webhook responded with %d: %s", resp.StatusCode, snippet),
			StatusCode: resp.StatusCode,
		}
	}
	return nil, &TransientError{
		Reason:     fmt.Sprintf("Webhook server error %d: %s", resp.StatusCode, snippet),
		StatusCode: resp.StatusCode,
	}
}

// readSnippet returns the leading portion of a response body for error
// messages.
func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, webhookMaxReadBytes))
	s := string(data)
	if len(s) > webhookBodySnippet {
		s = s[:webhookBodySnippet]
	}
	return s
}
