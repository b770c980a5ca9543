package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

// Template is a stored, reusable message template. Variables lists the
// names that must be supplied at render time; Subject is only meaningful
// for channels that carry one.
type Template struct {
	TemplateID string    `json:"template_id"`
	Name       string    `json:"name"`
	Channel    string    `json:"channel"`
	Subject    *string   `json:"subject"`
	Body       string    `json:"body"`
	Variables  []string  `json:"variables"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateRequest is the payload for POST /templates. A nil Active means
// active.
type CreateRequest struct {
	Name      string   `json:"name"`
	Channel   string   `json:"channel"`
	Subject   *string  `json:"subject,omitempty"`
	Body      string   `json:"body"`
	Variables []string `json:"variables,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

// Normalize trims the name.
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

// Validate checks the request after Normalize.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name must be a non-empty string")
	}
	if !notification.ValidChannel(r.Channel) {
		return fmt.Errorf("channel must be one of email, sms, webhook, push")
	}
	return nil
}
