package channel

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// Lenient E.164-style phone validation.
var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)

const (
	smsHardCharLimit = 1000
	smsSegmentSize   = 160
)

// SMSAdapter simulates a Twilio-like SMS provider: it validates recipient
// and body, sleeps for a realistic carrier round trip, and fails a
// configurable fraction of sends with a transient carrier error.
type SMSAdapter struct {
	FailureRate float64
	DelayMin    time.Duration
	DelayMax    time.Duration

	sleep func(time.Duration)
	rnd   func() float64
}

// NewSMSAdapter creates the adapter with the given transient-failure rate.
func NewSMSAdapter(failureRate float64) *SMSAdapter {
	return &SMSAdapter{
		FailureRate: failureRate,
		DelayMin:    time.Second,
		DelayMax:    5 * time.Second,
		sleep:       time.Sleep,
		rnd:         rand.Float64,
	}
}

func (a *SMSAdapter) Name() string { return "sms" }

func (a *SMSAdapter) Send(ctx context.Context, req Request, rendered Rendered) (*Result, error) {
	start := time.Now()

	body := strings.TrimSpace(rendered.Body)
	if body == "" {
		return nil, NewPermanent("SMS body is required")
	}

	recipient := strings.TrimSpace(req.Recipient)
	if !phoneRegex.MatchString(recipient) {
		return nil, NewPermanent("Invalid phone number format")
	}

	if len(body) > smsHardCharLimit {
		return nil, NewPermanent("SMS body exceeds %d characters", smsHardCharLimit)
	}

	a.sleep(a.DelayMin + time.Duration(a.rnd()*float64(a.DelayMax-a.DelayMin)))

	if a.rnd() < a.FailureRate {
		return nil, NewTransient("Carrier temporary failure")
	}

	segments := (len(body) + smsSegmentSize - 1) / smsSegmentSize
	if segments < 1 {
		segments = 1
	}
	return &Result{
		Provider:  "mock-twilio",
		LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
		Extra:     map[string]interface{}{"segments": segments},
	}, nil
}
