package template

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepo is an in-process Repository used by tests and by deployments
// that run without a database.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]*memoryRow
	seq  uint64
}

type memoryRow struct {
	tpl Template
	seq uint64
}

// NewMemoryRepo creates an empty in-memory template repository.
func NewMemoryRepo() Repository {
	return &memoryRepo{rows: make(map[string]*memoryRow)}
}

func (r *memoryRepo) Create(ctx context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.tpl.Name == t.Name {
			return ErrDuplicateName
		}
	}
	r.seq++
	r.rows[t.TemplateID] = &memoryRow{tpl: cloneTemplate(*t), seq: r.seq}
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	tpl := cloneTemplate(row.tpl)
	return &tpl, nil
}

func (r *memoryRepo) GetActiveByName(ctx context.Context, name string) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.tpl.Name == name && row.tpl.Active {
			tpl := cloneTemplate(row.tpl)
			return &tpl, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Template, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*memoryRow
	for _, row := range r.rows {
		if f.Channel != nil && row.tpl.Channel != *f.Channel {
			continue
		}
		if f.Active != nil && row.tpl.Active != *f.Active {
			continue
		}
		matched = append(matched, row)
	}

	// Newest first; insertion order breaks created_at ties.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].tpl.CreatedAt.Equal(matched[j].tpl.CreatedAt) {
			return matched[i].tpl.CreatedAt.After(matched[j].tpl.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := make([]*Template, 0, end-offset)
	for _, row := range matched[offset:end] {
		tpl := cloneTemplate(row.tpl)
		items = append(items, &tpl)
	}
	return items, total, nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.tpl.Active = active
	row.tpl.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneTemplate(t Template) Template {
	if t.Subject != nil {
		s := *t.Subject
		t.Subject = &s
	}
	if t.Variables != nil {
		t.Variables = append([]string(nil), t.Variables...)
	}
	return t
}
