package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lifecycle statuses.
const (
	StatusQueued    = "queued"
	StatusSending   = "sending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusBounced   = "bounced"
)

// Priorities.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Channels.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
	ChannelPush    = "push"
)

var validChannels = map[string]bool{
	ChannelEmail: true, ChannelSMS: true, ChannelWebhook: true, ChannelPush: true,
}

var validPriorities = map[string]bool{
	PriorityLow: true, PriorityNormal: true, PriorityHigh: true, PriorityCritical: true,
}

// ValidChannel reports whether name is a supported channel.
func ValidChannel(name string) bool { return validChannels[name] }

// Request is the admission payload for a single notification.
type Request struct {
	Channel    string                 `json:"channel"`
	Recipient  string                 `json:"recipient"`
	TemplateID *string                `json:"template_id,omitempty"`
	Content    map[string]interface{} `json:"content,omitempty"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
	Priority   string                 `json:"priority,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize trims the recipient and applies the default priority.
func (r *Request) Normalize() {
	r.Recipient = strings.TrimSpace(r.Recipient)
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
}

// Validate checks the request after Normalize.
func (r *Request) Validate() error {
	if !validChannels[r.Channel] {
		return fmt.Errorf("channel must be one of email, sms, webhook, push")
	}
	if r.Recipient == "" {
		return fmt.Errorf("recipient must be a non-empty string")
	}
	if !validPriorities[r.Priority] {
		return fmt.Errorf("priority must be one of low, normal, high, critical")
	}
	return nil
}

// Notification is the persisted record of one admission. Content holds the
// full request envelope (inline content, variables, metadata, template),
// so a worker can rebuild the request from the row alone.
type Notification struct {
	TrackingID    string                 `json:"tracking_id"`
	Channel       string                 `json:"channel"`
	Recipient     string                 `json:"recipient"`
	Content       map[string]interface{} `json:"content"`
	Priority      string                 `json:"priority"`
	Status        string                 `json:"status"`
	Attempts      int                    `json:"attempts"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
	DeliveredAt   *time.Time             `json:"delivered_at,omitempty"`
}

// New builds a queued notification from a validated request.
func New(req Request) *Notification {
	content := req.Content
	if content == nil {
		content = map[string]interface{}{}
	}
	variables := req.Variables
	if variables == nil {
		variables = map[string]interface{}{}
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	envelope := map[string]interface{}{
		"content":   content,
		"variables": variables,
		"metadata":  metadata,
	}
	if req.TemplateID != nil {
		envelope["template_id"] = *req.TemplateID
	} else {
		envelope["template_id"] = nil
	}

	return &Notification{
		TrackingID: uuid.New().String(),
		Channel:    req.Channel,
		Recipient:  req.Recipient,
		Content:    envelope,
		Priority:   req.Priority,
		Status:     StatusQueued,
		CreatedAt:  time.Now().UTC(),
	}
}

// Request rebuilds the admission request from the stored envelope. Rows
// written before the envelope format (a bare subject/body map) are read as
// inline content.
func (n *Notification) Request() Request {
	req := Request{
		Channel:   n.Channel,
		Recipient: n.Recipient,
		Priority:  n.Priority,
		Content:   map[string]interface{}{},
		Variables: map[string]interface{}{},
		Metadata:  map[string]interface{}{},
	}
	stored := n.Content
	if stored == nil {
		return req
	}

	_, hasContent := stored["content"]
	_, hasVars := stored["variables"]
	_, hasMeta := stored["metadata"]
	_, hasTpl := stored["template_id"]
	if !hasContent && !hasVars && !hasMeta && !hasTpl {
		req.Content = stored
		return req
	}

	if m, ok := stored["content"].(map[string]interface{}); ok {
		req.Content = m
	}
	if m, ok := stored["variables"].(map[string]interface{}); ok {
		req.Variables = m
	}
	if m, ok := stored["metadata"].(map[string]interface{}); ok {
		req.Metadata = m
	}
	if s, ok := stored["template_id"].(string); ok && s != "" {
		req.TemplateID = &s
	}
	return req
}

// Batch delivery modes.
const (
	DeliveryModeAtomic     = "atomic"
	DeliveryModeBestEffort = "best_effort"
)

// MaxBatchSize caps the number of notifications in one batch call.
const MaxBatchSize = 100

// BatchRequest admits up to MaxBatchSize notifications in one call.
// BatchMetadata is accepted for caller bookkeeping and not stored.
type BatchRequest struct {
	Notifications []Request              `json:"notifications"`
	DeliveryMode  string                 `json:"delivery_mode,omitempty"`
	BatchMetadata map[string]interface{} `json:"batch_metadata,omitempty"`
}

// BatchItem is one admission outcome within a batch.
type BatchItem struct {
	TrackingID string  `json:"tracking_id"`
	Status     string  `json:"status"`
	Error      *string `json:"error"`
}

// BatchResponse reports a batch admission.
type BatchResponse struct {
	BatchID string      `json:"batch_id"`
	Items   []BatchItem `json:"items"`
}

// Attempt is one dispatch of a notification, terminal in its own right.
type Attempt struct {
	ID            string    `json:"-"`
	TrackingID    string    `json:"-"`
	AttemptNumber int       `json:"attempt_number"`
	AttemptedAt   time.Time `json:"attempted_at"`
	Status        string    `json:"status"`
	ResponseCode  *int      `json:"response_code"`
	ErrorMessage  *string   `json:"error_message"`
	LatencyMS     float64   `json:"latency_ms"`
}

// Status is the API view of a notification with its attempt history.
type Status struct {
	TrackingID       string     `json:"tracking_id"`
	Status           string     `json:"status"`
	Channel          string     `json:"channel"`
	Recipient        string     `json:"recipient"`
	Attempts         int        `json:"attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt_at"`
	DeliveredAt      *time.Time `json:"delivered_at"`
	FailureReason    *string    `json:"failure_reason"`
	DeliveryAttempts []Attempt  `json:"delivery_attempts"`
}
