package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is an in-process Repository used by tests and by deployments
// that run without a database.
type memoryRepo struct {
	mu       sync.Mutex
	rows     map[string]*Notification
	attempts map[string][]Attempt
}

// NewMemoryRepo creates an empty in-memory notification repository.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		rows:     make(map[string]*Notification),
		attempts: make(map[string][]Attempt),
	}
}

func (r *memoryRepo) Create(ctx context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneNotification(n)
	r.rows[n.TrackingID] = cp
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, trackingID string) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[trackingID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, trackingID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[trackingID]
	if !ok {
		return ErrNotFound
	}
	n.Status = status
	return nil
}

func (r *memoryRepo) RecordAttempt(ctx context.Context, a *Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.rows[a.TrackingID]
	if !ok {
		return ErrNotFound
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.attempts[a.TrackingID] = append(r.attempts[a.TrackingID], cloneAttempt(*a))

	if a.AttemptNumber > n.Attempts {
		n.Attempts = a.AttemptNumber
	}
	at := a.AttemptedAt
	n.LastAttemptAt = &at

	switch a.Status {
	case StatusDelivered:
		n.Status = StatusDelivered
		n.DeliveredAt = &at
		n.FailureReason = nil
	case StatusFailed, StatusBounced:
		n.Status = a.Status
		if a.ErrorMessage != nil {
			msg := *a.ErrorMessage
			n.FailureReason = &msg
		} else {
			n.FailureReason = nil
		}
	}
	return nil
}

func (r *memoryRepo) ListAttempts(ctx context.Context, trackingID string) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.attempts[trackingID]
	out := make([]Attempt, 0, len(stored))
	for _, a := range stored {
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r *memoryRepo) AggregateWindow(ctx context.Context, start, end time.Time) (*WindowStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &WindowStats{
		TotalByChannel:     map[string]int{},
		DeliveredByChannel: map[string]int{},
		FailureReasons:     map[string]int{},
	}
	for _, n := range r.rows {
		if n.CreatedAt.Before(start) || n.CreatedAt.After(end) {
			continue
		}
		stats.TotalByChannel[n.Channel]++
		if n.Status == StatusDelivered {
			stats.DeliveredByChannel[n.Channel]++
		}
		if n.DeliveredAt != nil {
			stats.DeliveredCount++
			stats.DeliverySumMS += float64(n.DeliveredAt.Sub(n.CreatedAt)) / float64(time.Millisecond)
		}
		if (n.Status == StatusFailed || n.Status == StatusBounced) && n.FailureReason != nil {
			stats.FailureReasons[*n.FailureReason]++
		}
	}
	return stats, nil
}

func (r *memoryRepo) Ping(ctx context.Context) error { return nil }

func cloneNotification(n *Notification) *Notification {
	cp := *n
	if n.Content != nil {
		cp.Content = make(map[string]interface{}, len(n.Content))
		for k, v := range n.Content {
			cp.Content[k] = v
		}
	}
	if n.FailureReason != nil {
		s := *n.FailureReason
		cp.FailureReason = &s
	}
	if n.LastAttemptAt != nil {
		t := *n.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}

func cloneAttempt(a Attempt) Attempt {
	if a.ResponseCode != nil {
		c := *a.ResponseCode
		a.ResponseCode = &c
	}
	if a.ErrorMessage != nil {
		s := *a.ErrorMessage
		a.ErrorMessage = &s
	}
	return a
}
