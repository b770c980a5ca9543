// Package delivery runs the asynchronous pipeline between admission and the
// channel adapters: a worker pool that dequeues tracking IDs, applies the
// per-recipient circuit breaker and rate limiter, renders content, and
// dispatches with retries planned per priority.
package delivery

import (
	"math"
	"math/rand"
	"time"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

// Plan is the retry budget for one priority: the total attempt count and
// the waits before attempts 2..N.
type Plan struct {
	MaxAttempts int
	Delays      []time.Duration
}

var plans = map[string]Plan{
	notification.PriorityCritical: {MaxAttempts: 5, Delays: seconds(1, 5, 15, 60, 300)},
	notification.PriorityHigh:     {MaxAttempts: 3, Delays: seconds(5, 30, 120)},
	notification.PriorityNormal:   {MaxAttempts: 2, Delays: seconds(10, 60)},
	notification.PriorityLow:      {MaxAttempts: 1},
}

func seconds(vals ...int) []time.Duration {
	out := make([]time.Duration, len(vals))
	for i, v := range vals {
		out[i] = time.Duration(v) * time.Second
	}
	return out
}

// PlanFor returns the retry plan for priority. Unknown priorities use the
// normal plan.
func PlanFor(priority string) Plan {
	if p, ok := plans[priority]; ok {
		return p
	}
	return plans[notification.PriorityNormal]
}

// NextDelay returns the wait before attempt k (1-based). The first attempt
// runs immediately; attempts covered by the table use its delays; attempts
// beyond it back off exponentially from the last configured delay (or 1s)
// with ±20% jitter, clamped at zero.
func (p Plan) NextDelay(k int) time.Duration {
	if k <= 1 {
		return 0
	}
	if idx := k - 2; idx < len(p.Delays) {
		return p.Delays[idx]
	}
	base := time.Second
	if len(p.Delays) > 0 {
		base = p.Delays[len(p.Delays)-1]
	}
	d := float64(base) * math.Pow(2, float64(k-len(p.Delays)))
	d += (rand.Float64()*2 - 1) * 0.2 * d
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
