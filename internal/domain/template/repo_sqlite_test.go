package template

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/notifyd/notifyd/internal/platform/db"
)

func newSQLiteTestRepo(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()
	sdb, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sdb.Close() })
	if err := db.MigrateSQLite(ctx, sdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteRepo(sdb)
}

func sqliteTemplate(name string, at time.Time) *Template {
	subject := "Subject for " + name
	return &Template{
		TemplateID: uuid.NewString(),
		Name:       name,
		Channel:    "email",
		Subject:    &subject,
		Body:       "Hello {{name}}",
		Variables:  []string{"name"},
		Active:     true,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestSQLiteRepo_RoundTrip(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	tpl := sqliteTemplate("welcome", at)
	if err := repo.Create(ctx, tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, tpl.TemplateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "welcome" || got.Channel != "email" || !got.Active {
		t.Errorf("unexpected template: %+v", got)
	}
	if got.Subject == nil || *got.Subject != "Subject for welcome" {
		t.Errorf("unexpected subject: %v", got.Subject)
	}
	if len(got.Variables) != 1 || got.Variables[0] != "name" {
		t.Errorf("unexpected variables: %v", got.Variables)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("created_at not preserved: want %v, got %v", at, got.CreatedAt)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepo_DuplicateName(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, sqliteTemplate("dup", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, sqliteTemplate("dup", time.Now().UTC()))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestSQLiteRepo_ActiveByNameAndToggle(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	tpl := sqliteTemplate("order_confirm", time.Now().UTC())
	if err := repo.Create(ctx, tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetActiveByName(ctx, "order_confirm")
	if err != nil || got.TemplateID != tpl.TemplateID {
		t.Fatalf("get active by name: %v", err)
	}

	if err := repo.SetActive(ctx, tpl.TemplateID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := repo.GetActiveByName(ctx, "order_confirm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected inactive template to be hidden, got %v", err)
	}
	if _, err := repo.GetByID(ctx, tpl.TemplateID); err != nil {
		t.Errorf("get by id after deactivate: %v", err)
	}

	if err := repo.SetActive(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepo_ListOrderAndFilters(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older := sqliteTemplate("older", base)
	newer := sqliteTemplate("newer", base.Add(time.Hour))
	newer.Channel = "sms"
	newer.Active = false
	for _, tpl := range []*Template{older, newer} {
		if err := repo.Create(ctx, tpl); err != nil {
			t.Fatalf("create %s: %v", tpl.Name, err)
		}
	}

	items, total, err := repo.List(ctx, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 templates, got total=%d len=%d", total, len(items))
	}
	if items[0].Name != "newer" {
		t.Errorf("expected newest first, got %s", items[0].Name)
	}

	channel := "sms"
	active := false
	items, total, err = repo.List(ctx, ListFilter{Channel: &channel, Active: &active}, 10, 0)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if total != 1 || items[0].Name != "newer" {
		t.Errorf("unexpected filtered result: total=%d", total)
	}

	items, total, err = repo.List(ctx, ListFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if total != 2 || len(items) != 1 || items[0].Name != "older" {
		t.Errorf("unexpected page: total=%d len=%d", total, len(items))
	}
}
