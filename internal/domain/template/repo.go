package template

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no template matches the lookup.
	ErrNotFound = errors.New("template not found")
	// ErrDuplicateName is returned when a template's name is already taken.
	ErrDuplicateName = errors.New("template name already exists")
)

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	Channel *string
	Active  *bool
}

// Repository stores templates. All implementations enforce name uniqueness
// and order lists by created_at descending.
type Repository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id string) (*Template, error)
	// GetActiveByName looks up an active template by its unique name.
	GetActiveByName(ctx context.Context, name string) (*Template, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Template, int, error)
	SetActive(ctx context.Context, id string, active bool) error
}
