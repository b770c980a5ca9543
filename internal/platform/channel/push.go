package channel

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// Mock device token validation.
var deviceTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{16,256}$`)

// PushAdapter simulates an FCM/APNS-style push provider: token validation,
// a short network delay, and a synthetic delivery receipt.
type PushAdapter struct {
	FailureRate float64
	DelayMin    time.Duration
	DelayMax    time.Duration

	sleep func(time.Duration)
	rnd   func() float64
	now   func() time.Time
}

// NewPushAdapter creates the adapter with the given transient-failure rate.
func NewPushAdapter(failureRate float64) *PushAdapter {
	return &PushAdapter{
		FailureRate: failureRate,
		DelayMin:    100 * time.Millisecond,
		DelayMax:    time.Second,
		sleep:       time.Sleep,
		rnd:         rand.Float64,
		now:         time.Now,
	}
}

func (a *PushAdapter) Name() string { return "push" }

func (a *PushAdapter) Send(ctx context.Context, req Request, rendered Rendered) (*Result, error) {
	start := time.Now()

	token := strings.TrimSpace(req.Recipient)
	if !deviceTokenRegex.MatchString(token) {
		return nil, NewPermanent("Invalid device token")
	}

	body := strings.TrimSpace(rendered.Body)
	if body == "" {
		return nil, NewPermanent("Push body is required")
	}

	a.sleep(a.DelayMin + time.Duration(a.rnd()*float64(a.DelayMax-a.DelayMin)))

	if a.rnd() < a.FailureRate {
		return nil, NewTransient("Push provider temporary failure")
	}

	receipt := fmt.Sprintf("r_%d_%d", a.now().UnixMilli(), 1000+rand.Intn(9000))
	return &Result{
		Provider:  "mock-push",
		LatencyMS: float64(time.Since(start)) / float64(time.Millisecond),
		Extra:     map[string]interface{}{"receipt_id": receipt},
	}, nil
}
