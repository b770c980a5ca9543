package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Page != 1 {
		t.Errorf("expected default page 1, got %d", p.Page)
	}
	if p.Size != DefaultSize {
		t.Errorf("expected default size %d, got %d", DefaultSize, p.Size)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3&size=50", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Size != 50 {
		t.Errorf("expected size 50, got %d", p.Size)
	}
}

func TestFromContext_MaxSize(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?size=500", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Size != MaxSize {
		t.Errorf("expected size capped at %d, got %d", MaxSize, p.Size)
	}
}

func TestFromContext_BadValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=-2&size=junk", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c)

	if p.Page != 1 {
		t.Errorf("expected page 1 for negative input, got %d", p.Page)
	}
	if p.Size != DefaultSize {
		t.Errorf("expected default size for junk input, got %d", p.Size)
	}
}

func TestParams_Offset(t *testing.T) {
	tests := []struct {
		params Params
		want   int
	}{
		{Params{Page: 1, Size: 20}, 0},
		{Params{Page: 2, Size: 20}, 20},
		{Params{Page: 5, Size: 7}, 28},
	}
	for _, tt := range tests {
		if got := tt.params.Offset(); got != tt.want {
			t.Errorf("Offset(page=%d, size=%d) = %d, want %d", tt.params.Page, tt.params.Size, got, tt.want)
		}
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		total  int
		want   bool
	}{
		{"more results", Params{Page: 1, Size: 10}, 25, true},
		{"exact end", Params{Page: 3, Size: 10}, 30, false},
		{"past end", Params{Page: 4, Size: 10}, 25, false},
		{"no results", Params{Page: 1, Size: 10}, 0, false},
		{"last partial page", Params{Page: 3, Size: 10}, 25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.HasNext(tt.total); got != tt.want {
				t.Errorf("HasNext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	items := []string{"a", "b", "c"}
	r := NewResponse(items, 10, Params{Page: 2, Size: 3})

	if r.Total != 10 {
		t.Errorf("expected total 10, got %d", r.Total)
	}
	if r.Page != 2 {
		t.Errorf("expected page 2, got %d", r.Page)
	}
	if r.Size != 3 {
		t.Errorf("expected size 3, got %d", r.Size)
	}
}
