// Package channel defines the adapter contract for outbound delivery and
// the adapters for the supported channels (email, sms, webhook, push).
// Adapters classify every failure as permanent (never retry) or transient
// (retry per plan); the delivery workers act on that classification.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Request carries the delivery-relevant slice of a notification.
type Request struct {
	Channel   string
	Recipient string
	Metadata  map[string]interface{}
}

// Rendered is the message content after template rendering. A nil Subject
// means the message has none.
type Rendered struct {
	Subject *string
	Body    string
}

// Result is the adapter's report of a successful send. Extra holds
// provider-specific fields (segments, receipt IDs, SMTP responses).
type Result struct {
	Provider   string
	StatusCode int
	LatencyMS  float64
	Extra      map[string]interface{}
}

// Adapter sends one rendered notification. Errors must be classified via
// NewPermanent or NewTransient; anything else is treated as transient by
// the caller.
type Adapter interface {
	Name() string
	Send(ctx context.Context, req Request, rendered Rendered) (*Result, error)
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// PermanentError marks a failure that will not succeed on retry: validation
// problems, malformed recipients, 4xx responses. StatusCode is set when the
// provider answered with one.
type PermanentError struct {
	Reason     string
	StatusCode int
}

func (e *PermanentError) Error() string { return e.Reason }

// TransientError marks a retryable failure: timeouts, 5xx responses,
// network trouble, simulated carrier failures. StatusCode is set when the
// provider answered with one.
type TransientError struct {
	Reason     string
	StatusCode int
}

func (e *TransientError) Error() string { return e.Reason }

// NewPermanent builds a PermanentError.
func NewPermanent(format string, args ...interface{}) error {
	return &PermanentError{Reason: fmt.Sprintf(format, args...)}
}

// NewTransient builds a TransientError.
func NewTransient(format string, args ...interface{}) error {
	return &TransientError{Reason: fmt.Sprintf(format, args...)}
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusCode extracts the provider status code attached to a classified
// error, if any.
func StatusCode(err error) (int, bool) {
	var pe *PermanentError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode, true
	}
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return te.StatusCode, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry maps channel names to adapters.
type Registry struct {
	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for name. An unknown channel is a permanent
// error: retrying cannot make the channel exist.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, NewPermanent("Channel not supported: %s", name)
	}
	return a, nil
}

// Names lists the registered channel names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// MetadataHeaders extracts the string map under metadata["headers"], the
// way callers supply custom webhook headers. Values are stringified.
func MetadataHeaders(metadata map[string]interface{}) map[string]string {
	out := map[string]string{}
	if metadata == nil {
		return out
	}
	raw, ok := metadata["headers"].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
