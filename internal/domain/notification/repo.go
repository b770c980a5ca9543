package notification

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a tracking ID has no notification.
var ErrNotFound = errors.New("notification not found")

// WindowStats are the per-window aggregates behind the analytics summary.
// The repository does the grouping; rate and average math stays in the
// analytics service.
type WindowStats struct {
	TotalByChannel     map[string]int
	DeliveredByChannel map[string]int
	DeliveredCount     int
	DeliverySumMS      float64
	FailureReasons     map[string]int
}

// Repository persists notifications and their delivery attempts.
type Repository interface {
	// Create stores a freshly admitted notification.
	Create(ctx context.Context, n *Notification) error

	// Get returns the notification for trackingID, or ErrNotFound.
	Get(ctx context.Context, trackingID string) (*Notification, error)

	// SetStatus updates only the lifecycle status.
	SetStatus(ctx context.Context, trackingID, status string) error

	// RecordAttempt appends a delivery attempt and folds its outcome into
	// the parent row in the same transaction: attempts becomes
	// max(attempts, attempt_number) and last_attempt_at the attempt time;
	// a delivered attempt sets status/delivered_at and clears
	// failure_reason, a failed or bounced one sets status and
	// failure_reason. A zero AttemptedAt is filled with the current time.
	RecordAttempt(ctx context.Context, a *Attempt) error

	// ListAttempts returns the attempt history ordered by attempt_number.
	ListAttempts(ctx context.Context, trackingID string) ([]Attempt, error)

	// AggregateWindow summarizes notifications created in [start, end].
	AggregateWindow(ctx context.Context, start, end time.Time) (*WindowStats, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
