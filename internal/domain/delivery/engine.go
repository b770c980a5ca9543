package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notifyd/notifyd/internal/domain/notification"
	"github.com/notifyd/notifyd/internal/domain/template"
	"github.com/notifyd/notifyd/internal/platform/breaker"
	"github.com/notifyd/notifyd/internal/platform/channel"
	"github.com/notifyd/notifyd/internal/platform/queue"
	"github.com/notifyd/notifyd/internal/platform/ratelimit"
)

// TemplateSource resolves a template reference: by id first, then as the
// name of an active template.
type TemplateSource interface {
	Resolve(ctx context.Context, ref string) (*template.Template, error)
}

// Engine is the delivery worker pool. Admissions enter through Enqueue;
// workers dequeue by priority, run the guard rails (circuit breaker, rate
// limiter), render, dispatch through the channel adapter, and record every
// attempt. Failed transient attempts are re-enqueued on the delay timer
// according to the priority's retry plan.
type Engine struct {
	// Workers is the number of concurrent delivery goroutines.
	Workers int
	// RequeueWait is imposed on rate-limited items before they re-enter
	// the queue.
	RequeueWait time.Duration

	repo      notification.Repository
	templates TemplateSource
	adapters  *channel.Registry
	breakers  *breaker.Registry
	limiter   *ratelimit.Limiter
	queue     *queue.PriorityQueue
	timer     *queue.DelayTimer
	logger    zerolog.Logger

	// planFor maps a priority to its retry plan; swappable so tests can
	// shrink the backoff.
	planFor func(priority string) Plan

	wg sync.WaitGroup
}

// NewEngine wires a delivery engine. A nil limiter disables rate limiting.
func NewEngine(
	repo notification.Repository,
	templates TemplateSource,
	adapters *channel.Registry,
	breakers *breaker.Registry,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *Engine {
	q := queue.NewPriorityQueue()
	return &Engine{
		Workers:     4,
		RequeueWait: 500 * time.Millisecond,
		repo:        repo,
		templates:   templates,
		adapters:    adapters,
		breakers:    breakers,
		limiter:     limiter,
		queue:       q,
		timer:       queue.NewDelayTimer(q),
		logger:      logger,
		planFor:     PlanFor,
	}
}

// Enqueue admits a tracking ID for delivery at its priority's rank.
func (e *Engine) Enqueue(trackingID, priority string) {
	e.queue.Enqueue(queue.Rank(priority), trackingID)
}

// Start launches the worker pool. Workers run until Stop is called or ctx
// is cancelled.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runWorker(ctx)
		}()
	}
	e.logger.Info().Int("workers", e.Workers).Msg("delivery engine started")
}

// Stop closes the queue so workers drain what is already admitted, drops
// pending retry timers, and waits for the pool to exit.
func (e *Engine) Stop() {
	e.queue.Close()
	e.timer.Stop()
	e.wg.Wait()
}

func (e *Engine) runWorker(ctx context.Context) {
	for {
		entry, ok := e.queue.Dequeue(ctx)
		if !ok {
			return
		}
		e.deliver(ctx, entry.TrackingID)
	}
}

// deliver recovers panics so one bad notification cannot take down a
// worker.
func (e *Engine) deliver(ctx context.Context, trackingID string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("tracking_id", trackingID).Msg("delivery worker recovered")
		}
	}()
	if err := e.process(ctx, trackingID); err != nil {
		e.logger.Error().Err(err).Str("tracking_id", trackingID).Msg("delivery aborted")
	}
}

func (e *Engine) process(ctx context.Context, trackingID string) error {
	n, err := e.repo.Get(ctx, trackingID)
	if errors.Is(err, notification.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload notification: %w", err)
	}

	req := n.Request()
	plan := e.planFor(req.Priority)
	attemptNumber := n.Attempts + 1

	br := e.breakers.For(req.Recipient)
	if !br.Allow() {
		e.logger.Warn().Str("tracking_id", trackingID).Str("recipient", req.Recipient).Msg("circuit open, fast-failing")
		msg := "circuit_open"
		return e.repo.RecordAttempt(ctx, &notification.Attempt{
			TrackingID:    trackingID,
			AttemptNumber: attemptNumber,
			Status:        notification.StatusFailed,
			ErrorMessage:  &msg,
		})
	}

	if e.limiter != nil && !e.limiter.Allow(ratelimit.RecipientKey(req.Recipient), 1) {
		e.timer.Schedule(queue.Rank(req.Priority), trackingID, e.RequeueWait)
		return nil
	}

	if err := e.repo.SetStatus(ctx, trackingID, notification.StatusSending); err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}

	start := time.Now()
	result, err := e.dispatch(ctx, req)
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	if err == nil {
		br.OnSuccess()
		attempt := &notification.Attempt{
			TrackingID:    trackingID,
			AttemptNumber: attemptNumber,
			Status:        notification.StatusDelivered,
			LatencyMS:     latency,
		}
		if result != nil && result.StatusCode != 0 {
			code := result.StatusCode
			attempt.ResponseCode = &code
		}
		if rerr := e.repo.RecordAttempt(ctx, attempt); rerr != nil {
			return fmt.Errorf("record attempt: %w", rerr)
		}
		e.logger.Debug().Str("tracking_id", trackingID).Str("channel", req.Channel).Float64("latency_ms", latency).Msg("delivered")
		return nil
	}

	br.OnFailure()
	msg := err.Error()
	if !channel.IsPermanent(err) && !channel.IsTransient(err) {
		msg = fmt.Sprintf("unexpected: %v", err)
	}
	attempt := &notification.Attempt{
		TrackingID:    trackingID,
		AttemptNumber: attemptNumber,
		Status:        notification.StatusFailed,
		ErrorMessage:  &msg,
		LatencyMS:     latency,
	}
	if code, ok := channel.StatusCode(err); ok {
		attempt.ResponseCode = &code
	}
	if rerr := e.repo.RecordAttempt(ctx, attempt); rerr != nil {
		return fmt.Errorf("record attempt: %w", rerr)
	}

	// Permanent failures stop here; transient and unknown ones retry while
	// the plan allows.
	if !channel.IsPermanent(err) && attemptNumber < plan.MaxAttempts {
		delay := plan.NextDelay(attemptNumber + 1)
		e.timer.Schedule(queue.Rank(req.Priority), trackingID, delay)
		e.logger.Debug().Str("tracking_id", trackingID).Int("attempt", attemptNumber).Dur("delay", delay).Msg("retry scheduled")
	}
	return nil
}

// dispatch renders the content and sends it through the channel adapter.
func (e *Engine) dispatch(ctx context.Context, req notification.Request) (*channel.Result, error) {
	rendered, err := e.render(ctx, req)
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters.Get(req.Channel)
	if err != nil {
		return nil, err
	}
	return adapter.Send(ctx, channel.Request{
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Metadata:  req.Metadata,
	}, rendered)
}

// render resolves the referenced template, or falls back to the inline
// content map. A missing template is a permanent failure.
func (e *Engine) render(ctx context.Context, req notification.Request) (channel.Rendered, error) {
	if req.TemplateID != nil && *req.TemplateID != "" {
		t, err := e.templates.Resolve(ctx, *req.TemplateID)
		if err != nil {
			if errors.Is(err, template.ErrNotFound) {
				return channel.Rendered{}, channel.NewPermanent("Template not found")
			}
			return channel.Rendered{}, fmt.Errorf("resolve template: %w", err)
		}
		return template.Render(t, req.Variables, req.Channel == notification.ChannelEmail)
	}

	var rendered channel.Rendered
	if s, ok := req.Content["subject"].(string); ok && s != "" {
		rendered.Subject = &s
	}
	if b, ok := req.Content["body"].(string); ok {
		rendered.Body = b
	}
	return rendered, nil
}
