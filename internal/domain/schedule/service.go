package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Service admits new schedules.
type Service struct {
	repo Repository
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a schedule. The send time is normalized to
// UTC; the timezone must be a valid IANA name and the recurrence, when set,
// a five-field cron expression. Active defaults to true.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Schedule, error) {
	req.Notification.Normalize()
	if err := req.Notification.Validate(); err != nil {
		return nil, invalidf("%s", err)
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, invalidf("timezone must be a valid IANA name")
	}

	sendAt, err := parseSendAt(req.SendAt, loc)
	if err != nil {
		return nil, err
	}

	var recurrence *string
	if req.Recurrence != nil && *req.Recurrence != "" {
		if _, err := cron.ParseStandard(*req.Recurrence); err != nil {
			return nil, invalidf("recurrence must be a valid cron expression")
		}
		recurrence = req.Recurrence
	}

	sched := &Schedule{
		ScheduleID:   uuid.NewString(),
		Notification: req.Notification,
		SendAt:       sendAt,
		Timezone:     tz,
		Recurrence:   recurrence,
		Active:       true,
	}
	if req.Active != nil {
		sched.Active = *req.Active
	}
	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}
