package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ValidationError marks admission input the caller can correct. The HTTP
// layer answers it with 400 rather than 500.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Enqueuer hands admitted notifications to the delivery pipeline.
type Enqueuer interface {
	Enqueue(trackingID, priority string)
}

// Service admits notifications: validate, persist as queued, enqueue for
// the workers.
type Service struct {
	repo  Repository
	queue Enqueuer
}

// NewService creates a Service backed by repo that enqueues onto queue.
func NewService(repo Repository, queue Enqueuer) *Service {
	return &Service{repo: repo, queue: queue}
}

// Send admits one notification and returns its tracking ID.
func (s *Service) Send(ctx context.Context, req Request) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", &ValidationError{Msg: err.Error()}
	}
	return s.admit(ctx, req)
}

func (s *Service) admit(ctx context.Context, req Request) (string, error) {
	n := New(req)
	if err := s.repo.Create(ctx, n); err != nil {
		return "", fmt.Errorf("store notification: %w", err)
	}
	s.queue.Enqueue(n.TrackingID, n.Priority)
	return n.TrackingID, nil
}

// SendBulk admits the shared payload once per recipient. Every recipient is
// validated before the first admission so a bad entry cannot leave the bulk
// half admitted.
func (s *Service) SendBulk(ctx context.Context, base Request, recipients []string) ([]string, error) {
	reqs := make([]Request, 0, len(recipients))
	for i, recipient := range recipients {
		req := base
		req.Recipient = recipient
		req.Normalize()
		if err := req.Validate(); err != nil {
			return nil, invalidf("recipient %d: %s", i, err)
		}
		reqs = append(reqs, req)
	}

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		id, err := s.admit(ctx, req)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Batch admits up to MaxBatchSize notifications. Atomic mode validates
// every item before admitting any; best-effort mode admits what it can and
// reports per-item failures.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if len(req.Notifications) > MaxBatchSize {
		return nil, invalidf("Batch size cannot exceed %d", MaxBatchSize)
	}
	mode := req.DeliveryMode
	if mode == "" {
		mode = DeliveryModeAtomic
	}
	if mode != DeliveryModeAtomic && mode != DeliveryModeBestEffort {
		return nil, invalidf("delivery_mode must be atomic or best_effort")
	}

	resp := &BatchResponse{
		BatchID: uuid.NewString(),
		Items:   make([]BatchItem, 0, len(req.Notifications)),
	}

	if mode == DeliveryModeAtomic {
		admits := make([]Request, len(req.Notifications))
		for i, item := range req.Notifications {
			item.Normalize()
			if err := item.Validate(); err != nil {
				return nil, invalidf("Atomic validation failed: notification %d: %s", i, err)
			}
			admits[i] = item
		}
		for _, item := range admits {
			id, err := s.admit(ctx, item)
			if err != nil {
				return nil, err
			}
			resp.Items = append(resp.Items, BatchItem{TrackingID: id, Status: StatusQueued})
		}
		return resp, nil
	}

	for _, item := range req.Notifications {
		item.Normalize()
		err := item.Validate()
		var id string
		if err == nil {
			id, err = s.admit(ctx, item)
		}
		if err != nil {
			msg := err.Error()
			resp.Items = append(resp.Items, BatchItem{Status: StatusFailed, Error: &msg})
			continue
		}
		resp.Items = append(resp.Items, BatchItem{TrackingID: id, Status: StatusQueued})
	}
	return resp, nil
}

// Status returns the delivery view of one notification with its attempt
// history ordered by attempt number.
func (s *Service) Status(ctx context.Context, trackingID string) (*Status, error) {
	n, err := s.repo.Get(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return &Status{
		TrackingID:       n.TrackingID,
		Status:           n.Status,
		Channel:          n.Channel,
		Recipient:        n.Recipient,
		Attempts:         n.Attempts,
		LastAttemptAt:    n.LastAttemptAt,
		DeliveredAt:      n.DeliveredAt,
		FailureReason:    n.FailureReason,
		DeliveryAttempts: attempts,
	}, nil
}
