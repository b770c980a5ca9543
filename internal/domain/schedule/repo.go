package schedule

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no schedule matches the lookup.
var ErrNotFound = errors.New("schedule not found")

// Repository persists schedules. ListDue returns the active schedules whose
// send time has passed and has not been run yet at this occurrence
// (last_run unset or before send_at), ordered by send time.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id string) (*Schedule, error)
	ListDue(ctx context.Context, now time.Time) ([]*Schedule, error)
	Update(ctx context.Context, s *Schedule) error
}
