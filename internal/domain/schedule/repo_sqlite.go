package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/notifyd/notifyd/internal/domain/notification"
	platformdb "github.com/notifyd/notifyd/internal/platform/db"
)

// sqliteRepo stores schedules in SQLite. The notification payload is JSON
// TEXT; send_at and last_run are fixed-width UTC TEXT, so the due scan is a
// plain string comparison.
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo creates a SQLite-backed schedule store.
func NewSQLiteRepo(db *sql.DB) Repository {
	return &sqliteRepo{db: db}
}

func (r *sqliteRepo) Create(ctx context.Context, s *Schedule) error {
	payload, err := json.Marshal(s.Notification)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_notifications (`+scheduleCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ScheduleID, string(payload), platformdb.FormatTime(s.SendAt), s.Timezone,
		s.Recurrence, nullableTime(s.LastRun), s.Active,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *sqliteRepo) Get(ctx context.Context, id string) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scheduleCols+`
		FROM scheduled_notifications
		WHERE schedule_id = ?`, id)
	s, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *sqliteRepo) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleCols+`
		FROM scheduled_notifications
		WHERE active = 1 AND send_at <= ? AND (last_run IS NULL OR last_run < send_at)
		ORDER BY send_at`, platformdb.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Update(ctx context.Context, s *Schedule) error {
	payload, err := json.Marshal(s.Notification)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_notifications
		SET notification_data = ?, send_at = ?, timezone = ?, recurrence = ?, last_run = ?, active = ?
		WHERE schedule_id = ?`,
		string(payload), platformdb.FormatTime(s.SendAt), s.Timezone, s.Recurrence,
		nullableTime(s.LastRun), s.Active, s.ScheduleID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) scanRow(row interface{ Scan(...interface{}) error }) (*Schedule, error) {
	var (
		s       Schedule
		payload sql.NullString
		sendAt  string
		lastRun sql.NullString
	)
	if err := row.Scan(&s.ScheduleID, &payload, &sendAt, &s.Timezone, &s.Recurrence, &lastRun, &s.Active); err != nil {
		return nil, err
	}
	if payload.Valid && payload.String != "" {
		var req notification.Request
		if err := json.Unmarshal([]byte(payload.String), &req); err != nil {
			return nil, fmt.Errorf("decode notification payload: %w", err)
		}
		s.Notification = req
	}
	var err error
	if s.SendAt, err = platformdb.ParseTime(sendAt); err != nil {
		return nil, fmt.Errorf("parse send_at: %w", err)
	}
	if s.LastRun, err = parseNullableTime(lastRun); err != nil {
		return nil, fmt.Errorf("parse last_run: %w", err)
	}
	return &s, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return platformdb.FormatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := platformdb.ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
