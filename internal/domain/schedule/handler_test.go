package schedule

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, Repository) {
	repo := NewMemoryRepo()
	return NewHandler(NewService(repo)), repo
}

func postSchedule(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/notifications/schedule", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Create(t *testing.T) {
	h, repo := newTestHandler()
	c, rec := postSchedule(`{
		"notification": {"channel": "email", "recipient": "ann@example.com", "content": {"body": "hi"}},
		"send_at": "2026-03-01T09:00:00",
		"timezone": "America/New_York",
		"recurrence": "0 9 * * *"
	}`)

	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	id := resp["schedule_id"]
	if id == "" {
		t.Fatal("expected a schedule_id")
	}
	s := mustGet(t, repo, id)
	if s.Timezone != "America/New_York" || s.Recurrence == nil {
		t.Errorf("stored schedule lost fields: %+v", s)
	}
}

func TestHandler_Create_BadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "bad timezone",
			body: `{"notification": {"channel": "email", "recipient": "a@b.c"}, "send_at": "2026-03-01T09:00:00", "timezone": "Mars/Olympus"}`,
			want: "timezone must be a valid IANA name",
		},
		{
			name: "bad cron",
			body: `{"notification": {"channel": "email", "recipient": "a@b.c"}, "send_at": "2026-03-01T09:00:00", "recurrence": "sometimes"}`,
			want: "recurrence must be a valid cron expression",
		},
		{
			name: "bad send_at",
			body: `{"notification": {"channel": "email", "recipient": "a@b.c"}, "send_at": "soon"}`,
			want: "send_at must be an RFC3339 or 2006-01-02T15:04:05 timestamp",
		},
		{
			name: "bad notification",
			body: `{"notification": {"channel": "fax", "recipient": "a@b.c"}, "send_at": "2026-03-01T09:00:00"}`,
			want: "channel must be one of email, sms, webhook, push",
		},
	}
	h, _ := newTestHandler()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := postSchedule(tc.body)
			err := h.Create(c)
			he, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected an http error, got %v", err)
			}
			if he.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", he.Code, http.StatusBadRequest)
			}
			if he.Message != tc.want {
				t.Errorf("message = %v, want %q", he.Message, tc.want)
			}
		})
	}
}

func TestHandler_Create_MalformedBody(t *testing.T) {
	h, _ := newTestHandler()
	c, _ := postSchedule(`{"notification": `)
	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected an http error, got %v", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", he.Code, http.StatusBadRequest)
	}
}
