package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

type stubStore struct {
	stats *notification.WindowStats
	err   error

	gotStart time.Time
	gotEnd   time.Time
}

func (s *stubStore) AggregateWindow(ctx context.Context, start, end time.Time) (*notification.WindowStats, error) {
	s.gotStart = start
	s.gotEnd = end
	if s.err != nil {
		return nil, s.err
	}
	if s.stats != nil {
		return s.stats, nil
	}
	return &notification.WindowStats{
		TotalByChannel:     map[string]int{},
		DeliveredByChannel: map[string]int{},
		FailureReasons:     map[string]int{},
	}, nil
}

func TestSummary_ComputesRatesAndAverage(t *testing.T) {
	store := &stubStore{stats: &notification.WindowStats{
		TotalByChannel:     map[string]int{"email": 4, "sms": 2},
		DeliveredByChannel: map[string]int{"email": 3},
		DeliveredCount:     3,
		DeliverySumMS:      4500,
		FailureReasons:     map[string]int{"Carrier temporary failure": 2},
	}}
	svc := NewService(store)

	got, err := svc.Summary(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ByChannelDeliveryRates["email"] != 0.75 {
		t.Errorf("expected email rate 0.75, got %v", got.ByChannelDeliveryRates["email"])
	}
	if got.ByChannelDeliveryRates["sms"] != 0 {
		t.Errorf("expected sms rate 0, got %v", got.ByChannelDeliveryRates["sms"])
	}
	if got.AvgDeliveryTimeMS != 1500 {
		t.Errorf("expected avg 1500ms, got %v", got.AvgDeliveryTimeMS)
	}
	if got.FailureReasons["Carrier temporary failure"] != 2 {
		t.Errorf("unexpected failure reasons: %v", got.FailureReasons)
	}
}

func TestSummary_DefaultsToLast24Hours(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	got, err := svc.Summary(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.gotEnd.Equal(now) {
		t.Errorf("expected window end %v, got %v", now, store.gotEnd)
	}
	if !store.gotStart.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("expected window start 24h before end, got %v", store.gotStart)
	}
	if !got.TimeWindowStart.Equal(store.gotStart) || !got.TimeWindowEnd.Equal(store.gotEnd) {
		t.Error("expected response to echo the effective window")
	}
}

func TestSummary_DefaultStartRelativeToGivenEnd(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)

	end := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	if _, err := svc.Summary(context.Background(), nil, &end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.gotEnd.Equal(end) {
		t.Errorf("expected window end %v, got %v", end, store.gotEnd)
	}
	if !store.gotStart.Equal(end.Add(-24 * time.Hour)) {
		t.Errorf("expected window start %v, got %v", end.Add(-24*time.Hour), store.gotStart)
	}
}

func TestSummary_ExplicitWindowNormalizedToUTC(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)

	offset := time.FixedZone("plus2", 2*60*60)
	start := time.Date(2024, 3, 9, 10, 0, 0, 0, offset)
	end := time.Date(2024, 3, 10, 10, 0, 0, 0, offset)
	if _, err := svc.Summary(context.Background(), &start, &end); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gotStart.Location() != time.UTC || store.gotEnd.Location() != time.UTC {
		t.Error("expected window bounds in UTC")
	}
	if !store.gotStart.Equal(start) || !store.gotEnd.Equal(end) {
		t.Error("expected UTC conversion to preserve the instant")
	}
}

func TestSummary_EmptyWindow(t *testing.T) {
	svc := NewService(&stubStore{})

	got, err := svc.Summary(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.ByChannelDeliveryRates) != 0 {
		t.Errorf("expected no rates, got %v", got.ByChannelDeliveryRates)
	}
	if got.AvgDeliveryTimeMS != 0 {
		t.Errorf("expected avg 0, got %v", got.AvgDeliveryTimeMS)
	}
	if got.FailureReasons == nil {
		t.Error("expected failure_reasons to serialize as an object, not null")
	}
}

func TestSummary_StoreError(t *testing.T) {
	svc := NewService(&stubStore{err: errors.New("boom")})

	if _, err := svc.Summary(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error from store")
	}
}
