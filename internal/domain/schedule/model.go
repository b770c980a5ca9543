// Package schedule stores scheduled notifications and runs the loop that
// admits them into the delivery pipeline at their due time. One-off
// schedules deactivate after firing; recurring ones carry a five-field cron
// expression evaluated in the schedule's timezone.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

// Schedule is one stored scheduled notification. SendAt is always UTC;
// Timezone is kept for recurrence evaluation.
type Schedule struct {
	ScheduleID   string               `json:"schedule_id"`
	Notification notification.Request `json:"notification"`
	SendAt       time.Time            `json:"send_at"`
	Timezone     string               `json:"timezone"`
	Recurrence   *string              `json:"recurrence,omitempty"`
	LastRun      *time.Time           `json:"last_run,omitempty"`
	Active       bool                 `json:"active"`
}

// CreateRequest is the admission payload. SendAt accepts RFC3339 (offset
// respected) or a naive wall-clock time interpreted in Timezone.
type CreateRequest struct {
	Notification notification.Request `json:"notification"`
	SendAt       string               `json:"send_at"`
	Timezone     string               `json:"timezone,omitempty"`
	Recurrence   *string              `json:"recurrence,omitempty"`
	Active       *bool                `json:"active,omitempty"`
}

// ValidationError marks a client-correctable problem with a schedule
// request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

const naiveLayout = "2006-01-02T15:04:05"

// parseSendAt normalizes the requested send time to UTC. An RFC3339 value
// carries its own offset; a naive value is read as wall-clock time in loc.
func parseSendAt(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(naiveLayout, value, loc); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, invalidf("send_at must be an RFC3339 or %s timestamp", naiveLayout)
}

// NextOccurrence evaluates a cron expression in tz against now and returns
// the following occurrence in UTC.
func NextOccurrence(expr, tz string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone: %w", err)
	}
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return spec.Next(now.In(loc)).UTC(), nil
}
