package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

// Admitter admits a reconstructed request into the delivery pipeline.
// *notification.Service satisfies it.
type Admitter interface {
	Send(ctx context.Context, req notification.Request) (string, error)
}

// Engine is the scheduler loop: it polls the store for due schedules and
// admits each one as a fresh notification. One-off schedules deactivate
// after firing; recurring ones advance send_at to the next cron occurrence,
// evaluated against the current time in the schedule's timezone.
type Engine struct {
	// Interval is the poll period.
	Interval time.Duration

	repo     Repository
	admitter Admitter
	logger   zerolog.Logger

	done chan struct{}
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewEngine wires a scheduler engine polling repo every second.
func NewEngine(repo Repository, admitter Admitter, logger zerolog.Logger) *Engine {
	return &Engine{
		Interval: time.Second,
		repo:     repo,
		admitter: admitter,
		logger:   logger,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the poll loop. It runs until Stop is called or ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()
	e.logger.Info().Dur("interval", e.Interval).Msg("scheduler started")
}

// Stop terminates the loop and waits for it to exit.
func (e *Engine) Stop() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	e.wg.Wait()
}

// tick admits every due schedule. A failing schedule is logged and skipped;
// it stays due and will be retried on the next poll.
func (e *Engine) tick(ctx context.Context) {
	now := e.now().UTC()
	due, err := e.repo.ListDue(ctx, now)
	if err != nil {
		e.logger.Error().Err(err).Msg("list due schedules")
		return
	}
	for _, s := range due {
		if err := e.fire(ctx, s); err != nil {
			e.logger.Error().Err(err).Str("schedule_id", s.ScheduleID).Msg("schedule failed")
		}
	}
}

func (e *Engine) fire(ctx context.Context, s *Schedule) error {
	trackingID, err := e.admitter.Send(ctx, s.Notification)
	if err != nil {
		return fmt.Errorf("admit notification: %w", err)
	}

	now := e.now().UTC()
	s.LastRun = &now
	if s.Recurrence != nil && *s.Recurrence != "" {
		next, err := NextOccurrence(*s.Recurrence, s.Timezone, now)
		if err != nil {
			return fmt.Errorf("advance recurrence: %w", err)
		}
		s.SendAt = next
	} else {
		s.Active = false
	}
	if err := e.repo.Update(ctx, s); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	e.logger.Info().
		Str("schedule_id", s.ScheduleID).
		Str("tracking_id", trackingID).
		Str("channel", s.Notification.Channel).
		Msg("scheduled notification admitted")
	return nil
}
