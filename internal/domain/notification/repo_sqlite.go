package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	platformdb "github.com/notifyd/notifyd/internal/platform/db"
)

// sqliteRepo stores notifications in SQLite. The request envelope is JSON
// TEXT and timestamps are fixed-width UTC TEXT.
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo creates a SQLite-backed notification repository.
func NewSQLiteRepo(db *sql.DB) Repository {
	return &sqliteRepo{db: db}
}

func (r *sqliteRepo) Create(ctx context.Context, n *Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("marshal notification content: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.TrackingID, n.Channel, n.Recipient, string(content), n.Status, n.Priority,
		n.Attempts, platformdb.FormatTime(n.CreatedAt),
		nullableTime(n.DeliveredAt), nullableTime(n.LastAttemptAt), n.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *sqliteRepo) scanRow(row interface{ Scan(...interface{}) error }) (*Notification, error) {
	var (
		n             Notification
		content       sql.NullString
		createdAt     string
		deliveredAt   sql.NullString
		lastAttemptAt sql.NullString
	)
	if err := row.Scan(
		&n.TrackingID, &n.Channel, &n.Recipient, &content, &n.Status, &n.Priority,
		&n.Attempts, &createdAt, &deliveredAt, &lastAttemptAt, &n.FailureReason,
	); err != nil {
		return nil, err
	}
	if content.Valid && content.String != "" {
		if err := json.Unmarshal([]byte(content.String), &n.Content); err != nil {
			return nil, fmt.Errorf("unmarshal notification content: %w", err)
		}
	}
	var err error
	if n.CreatedAt, err = platformdb.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.DeliveredAt, err = parseNullableTime(deliveredAt); err != nil {
		return nil, fmt.Errorf("parse delivered_at: %w", err)
	}
	if n.LastAttemptAt, err = parseNullableTime(lastAttemptAt); err != nil {
		return nil, fmt.Errorf("parse last_attempt_at: %w", err)
	}
	return &n, nil
}

func (r *sqliteRepo) Get(ctx context.Context, trackingID string) (*Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE tracking_id = ?`, trackingID)
	n, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (r *sqliteRepo) SetStatus(ctx context.Context, trackingID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE tracking_id = ?`, status, trackingID)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	return requireRow(res)
}

func (r *sqliteRepo) RecordAttempt(ctx context.Context, a *Attempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	attemptedAt := platformdb.FormatTime(a.AttemptedAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record attempt: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET attempts = MAX(attempts, ?), last_attempt_at = ?
		WHERE tracking_id = ?`,
		a.AttemptNumber, attemptedAt, a.TrackingID,
	)
	if err != nil {
		return fmt.Errorf("update notification attempts: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	switch a.Status {
	case StatusDelivered:
		_, err = tx.ExecContext(ctx, `
			UPDATE notifications
			SET status = ?, delivered_at = ?, failure_reason = NULL
			WHERE tracking_id = ?`,
			StatusDelivered, attemptedAt, a.TrackingID,
		)
	case StatusFailed, StatusBounced:
		_, err = tx.ExecContext(ctx, `
			UPDATE notifications
			SET status = ?, failure_reason = ?
			WHERE tracking_id = ?`,
			a.Status, a.ErrorMessage, a.TrackingID,
		)
	}
	if err != nil {
		return fmt.Errorf("update notification outcome: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO delivery_attempts (`+attemptCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TrackingID, a.AttemptNumber, a.Status, a.ErrorMessage, a.ResponseCode, attemptedAt, a.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record attempt: %w", err)
	}
	return nil
}

func (r *sqliteRepo) ListAttempts(ctx context.Context, trackingID string) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM delivery_attempts WHERE tracking_id = ? ORDER BY attempt_number`,
		trackingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var (
			a           Attempt
			attemptedAt string
		)
		if err := rows.Scan(
			&a.ID, &a.TrackingID, &a.AttemptNumber, &a.Status,
			&a.ErrorMessage, &a.ResponseCode, &attemptedAt, &a.LatencyMS,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.AttemptedAt, err = platformdb.ParseTime(attemptedAt); err != nil {
			return nil, fmt.Errorf("parse attempted_at: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func (r *sqliteRepo) AggregateWindow(ctx context.Context, start, end time.Time) (*WindowStats, error) {
	stats := &WindowStats{
		TotalByChannel:     map[string]int{},
		DeliveredByChannel: map[string]int{},
		FailureReasons:     map[string]int{},
	}
	startText := platformdb.FormatTime(start)
	endText := platformdb.FormatTime(end)

	rows, err := r.db.QueryContext(ctx, `
		SELECT channel,
		       COUNT(*),
		       SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END)
		FROM notifications
		WHERE created_at >= ? AND created_at <= ?
		GROUP BY channel`,
		startText, endText,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			channel          string
			total, delivered int
		)
		if err := rows.Scan(&channel, &total, &delivered); err != nil {
			return nil, fmt.Errorf("scan channel aggregate: %w", err)
		}
		stats.TotalByChannel[channel] = total
		if delivered > 0 {
			stats.DeliveredByChannel[channel] = delivered
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate channels: %w", err)
	}

	// TEXT timestamps rule out SQL date math; the delivery-time average is
	// summed here instead.
	drows, err := r.db.QueryContext(ctx, `
		SELECT created_at, delivered_at
		FROM notifications
		WHERE created_at >= ? AND created_at <= ? AND delivered_at IS NOT NULL`,
		startText, endText,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate delivery time: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var createdText, deliveredText string
		if err := drows.Scan(&createdText, &deliveredText); err != nil {
			return nil, fmt.Errorf("scan delivery time: %w", err)
		}
		created, err := platformdb.ParseTime(createdText)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		delivered, err := platformdb.ParseTime(deliveredText)
		if err != nil {
			return nil, fmt.Errorf("parse delivered_at: %w", err)
		}
		stats.DeliveredCount++
		stats.DeliverySumMS += float64(delivered.Sub(created)) / float64(time.Millisecond)
	}
	if err := drows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate delivery time: %w", err)
	}

	frows, err := r.db.QueryContext(ctx, `
		SELECT failure_reason, COUNT(*)
		FROM notifications
		WHERE created_at >= ? AND created_at <= ?
		  AND status IN ('failed', 'bounced')
		  AND failure_reason IS NOT NULL
		GROUP BY failure_reason`,
		startText, endText,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate failure reasons: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var (
			reason string
			count  int
		)
		if err := frows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("scan failure reason: %w", err)
		}
		stats.FailureReasons[reason] = count
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate failure reasons: %w", err)
	}

	return stats, nil
}

func (r *sqliteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
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
