package breaker

import (
	"sync"
	"testing"
	"time"
)

// helper: breaker with a clock the test controls.
func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(threshold, cooldown)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker should allow")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	if b.State() != StateClosed {
		t.Errorf("expected closed after 2 failures, got %v", b.State())
	}
	b.OnFailure()
	if b.State() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", b.State())
	}
	if b.Allow() {
		t.Error("open breaker should deny")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	if b.FailureCount() != 0 {
		t.Errorf("expected count reset, got %d", b.FailureCount())
	}
	b.OnFailure()
	b.OnFailure()
	if b.State() != StateClosed {
		t.Errorf("expected closed at 2 failures after reset, got %v", b.State())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	if b.Allow() {
		t.Fatal("expected deny while open")
	}

	*now = now.Add(59 * time.Second)
	if b.Allow() {
		t.Fatal("expected deny before cooldown elapses")
	}

	*now = now.Add(time.Second)
	if !b.Allow() {
		t.Fatal("expected probe allowed after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("expected half_open, got %v", b.State())
	}
}

func TestBreaker_SingleProbe(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	*now = now.Add(time.Minute)

	if !b.Allow() {
		t.Fatal("expected first post-cooldown request allowed")
	}
	if b.Allow() {
		t.Error("expected second request denied while probe in flight")
	}
	if b.Allow() {
		t.Error("expected third request denied while probe in flight")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	*now = now.Add(time.Minute)
	b.Allow()
	b.OnSuccess()

	if b.State() != StateClosed {
		t.Errorf("expected closed after probe success, got %v", b.State())
	}
	if b.FailureCount() != 0 {
		t.Errorf("expected count 0, got %d", b.FailureCount())
	}
	if !b.Allow() {
		t.Error("expected closed breaker to allow")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)
	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	*now = now.Add(time.Minute)
	b.Allow()
	b.OnFailure()

	if b.State() != StateOpen {
		t.Errorf("expected open after probe failure, got %v", b.State())
	}
	if b.Allow() {
		t.Error("expected deny right after reopen")
	}

	// Cooldown restarts from the probe failure.
	*now = now.Add(time.Minute)
	if !b.Allow() {
		t.Error("expected new probe after second cooldown")
	}
}

func TestBreaker_OpenWithoutTimestampStampsAndDenies(t *testing.T) {
	b, now := newTestBreaker(3, time.Minute)
	b.state = StateOpen

	if b.Allow() {
		t.Error("expected deny while stamping opened_at")
	}
	*now = now.Add(time.Minute)
	if !b.Allow() {
		t.Error("expected probe once cooldown elapsed from stamp")
	}
}

func TestBreaker_ConcurrentProbeClaim(t *testing.T) {
	b := New(3, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		b.OnFailure()
	}
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Errorf("expected exactly 1 probe, got %d", allowed)
	}
}

// ===================== Registry =====================

func TestRegistry_PerKeyIsolation(t *testing.T) {
	r := NewRegistry(3, time.Minute)

	a := r.For("alice@example.com")
	for i := 0; i < 3; i++ {
		a.OnFailure()
	}

	if r.For("alice@example.com").Allow() {
		t.Error("expected alice's breaker open")
	}
	if !r.For("bob@example.com").Allow() {
		t.Error("expected bob's breaker unaffected")
	}
}

func TestRegistry_ReturnsSameBreaker(t *testing.T) {
	r := NewRegistry(3, time.Minute)
	a := r.For("key-1")
	b := r.For("key-1")
	if a != b {
		t.Error("expected the same breaker instance per key")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 breaker, got %d", r.Len())
	}
}
