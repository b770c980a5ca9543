package schedule

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRow struct {
	sched Schedule
	seq   uint64
}

type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]*memoryRow
	seq  uint64
}

// NewMemoryRepo creates an in-memory schedule store for tests and local
// runs.
func NewMemoryRepo() Repository {
	return &memoryRepo{rows: make(map[string]*memoryRow)}
}

func (r *memoryRepo) Create(_ context.Context, s *Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.rows[s.ScheduleID] = &memoryRow{sched: *cloneSchedule(s), seq: r.seq}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSchedule(&row.sched), nil
}

func (r *memoryRepo) ListDue(_ context.Context, now time.Time) ([]*Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*memoryRow
	for _, row := range r.rows {
		s := &row.sched
		if !s.Active || s.SendAt.After(now) {
			continue
		}
		if s.LastRun != nil && !s.LastRun.Before(s.SendAt) {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].sched.SendAt.Equal(due[j].sched.SendAt) {
			return due[i].sched.SendAt.Before(due[j].sched.SendAt)
		}
		return due[i].seq < due[j].seq
	})
	out := make([]*Schedule, len(due))
	for i, row := range due {
		out[i] = cloneSchedule(&row.sched)
	}
	return out, nil
}

func (r *memoryRepo) Update(_ context.Context, s *Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[s.ScheduleID]
	if !ok {
		return ErrNotFound
	}
	row.sched = *cloneSchedule(s)
	return nil
}

func cloneSchedule(s *Schedule) *Schedule {
	out := *s
	if s.Recurrence != nil {
		v := *s.Recurrence
		out.Recurrence = &v
	}
	if s.LastRun != nil {
		v := *s.LastRun
		out.LastRun = &v
	}
	return &out
}
