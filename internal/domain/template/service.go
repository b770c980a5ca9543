package template

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/notifyd/notifyd/internal/platform/channel"
	tmpl "github.com/notifyd/notifyd/internal/platform/template"
	"github.com/notifyd/notifyd/pkg/pagination"
)

// Service owns template lifecycle: creation, lookup, listing, and
// activation. Rendering is the package-level Render.
type Service struct {
	repo Repository
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a new template. Active defaults to true,
// variables to an empty list.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Template, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := &Template{
		TemplateID: uuid.NewString(),
		Name:       req.Name,
		Channel:    req.Channel,
		Subject:    req.Subject,
		Body:       req.Body,
		Variables:  req.Variables,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if t.Variables == nil {
		t.Variables = []string{}
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID fetches one template.
func (s *Service) GetByID(ctx context.Context, id string) (*Template, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of templates, newest first, with the total match
// count.
func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) ([]*Template, int, error) {
	return s.repo.List(ctx, f, p.Size, p.Offset())
}

// SetActive toggles a template without deleting it, so notifications that
// reference it by name stop (or resume) resolving.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// Resolve finds the template a notification references: by ID first, then
// as the name of an active template.
func (s *Service) Resolve(ctx context.Context, ref string) (*Template, error) {
	t, err := s.repo.GetByID(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.repo.GetActiveByName(ctx, ref)
}

// Render fills t's subject and body with vars after checking that every
// declared variable was supplied. Substituted values are HTML-escaped only
// in HTML contexts (email); sms, webhook, and push content passes through
// raw.
func Render(t *Template, vars map[string]interface{}, htmlContext bool) (channel.Rendered, error) {
	if err := tmpl.ValidateRequired(t.Variables, vars); err != nil {
		return channel.Rendered{}, err
	}
	renderText := tmpl.RenderPlain
	if htmlContext {
		renderText = tmpl.Render
	}
	var out channel.Rendered
	if t.Subject != nil && *t.Subject != "" {
		subject, err := renderText(*t.Subject, vars)
		if err != nil {
			return channel.Rendered{}, err
		}
		out.Subject = &subject
	}
	body, err := renderText(t.Body, vars)
	if err != nil {
		return channel.Rendered{}, err
	}
	out.Body = body
	return out, nil
}
