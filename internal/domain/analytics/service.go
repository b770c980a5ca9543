// Package analytics summarizes delivery outcomes over a time window:
// per-channel delivery rates, average time from admission to delivery, and
// a breakdown of failure reasons.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

// Store is the slice of the notification store the summary reads.
type Store interface {
	AggregateWindow(ctx context.Context, start, end time.Time) (*notification.WindowStats, error)
}

// Summary is the analytics response.
type Summary struct {
	ByChannelDeliveryRates map[string]float64 `json:"by_channel_delivery_rates"`
	AvgDeliveryTimeMS      float64            `json:"avg_delivery_time_ms"`
	FailureReasons         map[string]int     `json:"failure_reasons"`
	TimeWindowStart        time.Time          `json:"time_window_start"`
	TimeWindowEnd          time.Time          `json:"time_window_end"`
}

// Service computes summaries.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service reading from store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Summary aggregates the window. A nil end defaults to now, a nil start to
// 24 hours before the end. Bounds are inclusive on created_at.
func (s *Service) Summary(ctx context.Context, start, end *time.Time) (*Summary, error) {
	windowEnd := s.now().UTC()
	if end != nil {
		windowEnd = end.UTC()
	}
	windowStart := windowEnd.Add(-24 * time.Hour)
	if start != nil {
		windowStart = start.UTC()
	}

	stats, err := s.store.AggregateWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregate window: %w", err)
	}

	rates := make(map[string]float64, len(stats.TotalByChannel))
	for channel, total := range stats.TotalByChannel {
		var rate float64
		if total > 0 {
			rate = float64(stats.DeliveredByChannel[channel]) / float64(total)
		}
		rates[channel] = rate
	}

	var avg float64
	if stats.DeliveredCount > 0 {
		avg = stats.DeliverySumMS / float64(stats.DeliveredCount)
	}

	reasons := stats.FailureReasons
	if reasons == nil {
		reasons = map[string]int{}
	}

	return &Summary{
		ByChannelDeliveryRates: rates,
		AvgDeliveryTimeMS:      avg,
		FailureReasons:         reasons,
		TimeWindowStart:        windowStart,
		TimeWindowEnd:          windowEnd,
	}, nil
}
