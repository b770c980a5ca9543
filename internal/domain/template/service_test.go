package template

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notifyd/notifyd/pkg/pagination"
)

func newTestService() *Service {
	return NewService(NewMemoryRepo())
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreate_Defaults(t *testing.T) {
	svc := newTestService()

	tpl, err := svc.Create(context.Background(), &CreateRequest{
		Name:    "welcome_email",
		Channel: "email",
		Subject: strPtr("Welcome!"),
		Body:    "Hello {{name}}",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.TemplateID == "" {
		t.Error("expected a generated template_id")
	}
	if !tpl.Active {
		t.Error("expected new template to default to active")
	}
	if tpl.Variables == nil || len(tpl.Variables) != 0 {
		t.Errorf("expected empty variables slice, got %v", tpl.Variables)
	}
	if tpl.CreatedAt.IsZero() || tpl.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestCreate_RespectsActiveFalse(t *testing.T) {
	svc := newTestService()

	tpl, err := svc.Create(context.Background(), &CreateRequest{
		Name:    "draft",
		Channel: "sms",
		Body:    "x",
		Active:  boolPtr(false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Active {
		t.Error("expected template to stay inactive")
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, &CreateRequest{Name: "dup", Channel: "email", Body: "a"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, &CreateRequest{Name: "dup", Channel: "sms", Body: "b"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, &CreateRequest{Name: "  ", Channel: "email", Body: "x"}); err == nil || !strings.Contains(err.Error(), "name must be a non-empty string") {
		t.Errorf("expected name validation error, got %v", err)
	}
	if _, err := svc.Create(ctx, &CreateRequest{Name: "t", Channel: "fax", Body: "x"}); err == nil || !strings.Contains(err.Error(), "channel must be one of") {
		t.Errorf("expected channel validation error, got %v", err)
	}
}

func TestList_NewestFirstWithFilters(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for _, spec := range []struct {
		name    string
		channel string
		active  bool
	}{
		{"first", "email", true},
		{"second", "sms", true},
		{"third", "email", false},
	} {
		if _, err := svc.Create(ctx, &CreateRequest{
			Name:    spec.name,
			Channel: spec.channel,
			Body:    "x",
			Active:  boolPtr(spec.active),
		}); err != nil {
			t.Fatalf("create %s: %v", spec.name, err)
		}
	}

	items, total, err := svc.List(ctx, ListFilter{}, pagination.Params{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 templates, got total=%d len=%d", total, len(items))
	}
	if items[0].Name != "third" || items[2].Name != "first" {
		t.Errorf("expected newest-first order, got %s..%s", items[0].Name, items[2].Name)
	}

	channel := "email"
	items, total, err = svc.List(ctx, ListFilter{Channel: &channel}, pagination.Params{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("list by channel: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 email templates, got %d", total)
	}

	active := true
	items, total, err = svc.List(ctx, ListFilter{Channel: &channel, Active: &active}, pagination.Params{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("list by channel+active: %v", err)
	}
	if total != 1 || items[0].Name != "first" {
		t.Errorf("expected only 'first', got total=%d", total)
	}
}

func TestList_Pagination(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := svc.Create(ctx, &CreateRequest{Name: name, Channel: "push", Body: "x"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	items, total, err := svc.List(ctx, ListFilter{}, pagination.Params{Page: 2, Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 1 || items[0].Name != "a" {
		t.Errorf("expected last page to hold the oldest template, got %v", items)
	}
}

func TestSetActive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tpl, err := svc.Create(ctx, &CreateRequest{Name: "toggle", Channel: "email", Body: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.SetActive(ctx, tpl.TemplateID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, err := svc.GetByID(ctx, tpl.TemplateID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active {
		t.Error("expected template to be inactive")
	}

	if err := svc.SetActive(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tpl, err := svc.Create(ctx, &CreateRequest{Name: "order_confirm", Channel: "email", Body: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byID, err := svc.Resolve(ctx, tpl.TemplateID)
	if err != nil || byID.TemplateID != tpl.TemplateID {
		t.Fatalf("resolve by id: %v", err)
	}
	byName, err := svc.Resolve(ctx, "order_confirm")
	if err != nil || byName.TemplateID != tpl.TemplateID {
		t.Fatalf("resolve by name: %v", err)
	}

	if err := svc.SetActive(ctx, tpl.TemplateID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := svc.Resolve(ctx, "order_confirm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected inactive template to stop resolving by name, got %v", err)
	}
	// Direct ID lookup still works for inactive templates.
	if _, err := svc.Resolve(ctx, tpl.TemplateID); err != nil {
		t.Errorf("resolve inactive by id: %v", err)
	}
}

func TestRender_HTMLContextEscapes(t *testing.T) {
	tpl := &Template{
		Subject:   strPtr("Hi {{name}}"),
		Body:      "Welcome, {{name}}",
		Variables: []string{"name"},
	}
	out, err := Render(tpl, map[string]interface{}{"name": "<b>Ann</b>"}, true)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject == nil || *out.Subject != "Hi &lt;b&gt;Ann&lt;/b&gt;" {
		t.Errorf("unexpected subject: %v", out.Subject)
	}
	if out.Body != "Welcome, &lt;b&gt;Ann&lt;/b&gt;" {
		t.Errorf("unexpected body: %q", out.Body)
	}
}

func TestRender_PlainContextKeepsRawText(t *testing.T) {
	tpl := &Template{
		Body:      "Code: {{code}}",
		Variables: []string{"code"},
	}
	out, err := Render(tpl, map[string]interface{}{"code": `A<1> & "B"`}, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Body != `Code: A<1> & "B"` {
		t.Errorf("expected raw substitution, got %q", out.Body)
	}
	if out.Subject != nil {
		t.Errorf("expected no subject, got %v", *out.Subject)
	}
}

func TestRender_MissingVariables(t *testing.T) {
	tpl := &Template{
		Body:      "{{first_name}} owes {{amount}}",
		Variables: []string{"first_name", "amount"},
	}
	_, err := Render(tpl, map[string]interface{}{}, false)
	if err == nil {
		t.Fatal("expected missing-variable error")
	}
	want := "Missing required template variables: first_name, amount"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestRender_EmptySubjectOmitted(t *testing.T) {
	tpl := &Template{Subject: strPtr(""), Body: "x"}
	out, err := Render(tpl, map[string]interface{}{}, true)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.Subject != nil {
		t.Error("expected empty subject to be omitted")
	}
}
