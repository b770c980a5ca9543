package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyd/notifyd/internal/domain/notification"
)

const scheduleCols = "schedule_id, notification_data, send_at, timezone, recurrence, last_run, active"

type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPGRepo creates a postgres-backed schedule store.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) Create(ctx context.Context, s *Schedule) error {
	payload, err := json.Marshal(s.Notification)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scheduled_notifications (`+scheduleCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ScheduleID, payload, s.SendAt, s.Timezone, s.Recurrence, s.LastRun, s.Active,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *pgRepo) Get(ctx context.Context, id string) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleCols+`
		FROM scheduled_notifications
		WHERE schedule_id = $1`, id)
	return scanSchedule(row)
}

func (r *pgRepo) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleCols+`
		FROM scheduled_notifications
		WHERE active AND send_at <= $1 AND (last_run IS NULL OR last_run < send_at)
		ORDER BY send_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *pgRepo) Update(ctx context.Context, s *Schedule) error {
	payload, err := json.Marshal(s.Notification)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_notifications
		SET notification_data = $2, send_at = $3, timezone = $4, recurrence = $5, last_run = $6, active = $7
		WHERE schedule_id = $1`,
		s.ScheduleID, payload, s.SendAt, s.Timezone, s.Recurrence, s.LastRun, s.Active,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var (
		s       Schedule
		payload []byte
	)
	err := row.Scan(&s.ScheduleID, &payload, &s.SendAt, &s.Timezone, &s.Recurrence, &s.LastRun, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if len(payload) > 0 {
		var req notification.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode notification payload: %w", err)
		}
		s.Notification = req
	}
	s.SendAt = s.SendAt.UTC()
	if s.LastRun != nil {
		utc := s.LastRun.UTC()
		s.LastRun = &utc
	}
	return &s, nil
}
