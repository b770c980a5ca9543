package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationCols = "tracking_id, channel, recipient, content, status, priority, attempts, created_at, delivered_at, last_attempt_at, failure_reason"

const attemptCols = "id, tracking_id, attempt_number, status, error_message, response_code, attempted_at, latency_ms"

// pgRepo stores notifications in PostgreSQL. The request envelope travels
// as JSONB.
type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPGRepo creates a PostgreSQL-backed notification repository.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n       Notification
		content []byte
	)
	if err := row.Scan(
		&n.TrackingID, &n.Channel, &n.Recipient, &content, &n.Status, &n.Priority,
		&n.Attempts, &n.CreatedAt, &n.DeliveredAt, &n.LastAttemptAt, &n.FailureReason,
	); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &n.Content); err != nil {
			return nil, fmt.Errorf("unmarshal notification content: %w", err)
		}
	}
	return &n, nil
}

func (r *pgRepo) Create(ctx context.Context, n *Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("marshal notification content: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.TrackingID, n.Channel, n.Recipient, content, n.Status, n.Priority,
		n.Attempts, n.CreatedAt, n.DeliveredAt, n.LastAttemptAt, n.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *pgRepo) Get(ctx context.Context, trackingID string) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+notificationCols+` FROM notifications WHERE tracking_id = $1`, trackingID)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (r *pgRepo) SetStatus(ctx context.Context, trackingID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET status = $1 WHERE tracking_id = $2`,
		status, trackingID,
	)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) RecordAttempt(ctx context.Context, a *Attempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record attempt: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE notifications
		SET attempts = GREATEST(attempts, $2), last_attempt_at = $3
		WHERE tracking_id = $1`,
		a.TrackingID, a.AttemptNumber, a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("update notification attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	switch a.Status {
	case StatusDelivered:
		_, err = tx.Exec(ctx, `
			UPDATE notifications
			SET status = $2, delivered_at = $3, failure_reason = NULL
			WHERE tracking_id = $1`,
			a.TrackingID, StatusDelivered, a.AttemptedAt,
		)
	case StatusFailed, StatusBounced:
		_, err = tx.Exec(ctx, `
			UPDATE notifications
			SET status = $2, failure_reason = $3
			WHERE tracking_id = $1`,
			a.TrackingID, a.Status, a.ErrorMessage,
		)
	}
	if err != nil {
		return fmt.Errorf("update notification outcome: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO delivery_attempts (`+attemptCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TrackingID, a.AttemptNumber, a.Status, a.ErrorMessage, a.ResponseCode, a.AttemptedAt, a.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record attempt: %w", err)
	}
	return nil
}

func (r *pgRepo) ListAttempts(ctx context.Context, trackingID string) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptCols+` FROM delivery_attempts WHERE tracking_id = $1 ORDER BY attempt_number`,
		trackingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(
			&a.ID, &a.TrackingID, &a.AttemptNumber, &a.Status,
			&a.ErrorMessage, &a.ResponseCode, &a.AttemptedAt, &a.LatencyMS,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func (r *pgRepo) AggregateWindow(ctx context.Context, start, end time.Time) (*WindowStats, error) {
	stats := &WindowStats{
		TotalByChannel:     map[string]int{},
		DeliveredByChannel: map[string]int{},
		FailureReasons:     map[string]int{},
	}

	rows, err := r.pool.Query(ctx, `
		SELECT channel,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'delivered')
		FROM notifications
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY channel`,
		start, end,
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

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(EXTRACT(EPOCH FROM (delivered_at - created_at)) * 1000), 0)
		FROM notifications
		WHERE created_at >= $1 AND created_at <= $2 AND delivered_at IS NOT NULL`,
		start, end,
	).Scan(&stats.DeliveredCount, &stats.DeliverySumMS)
	if err != nil {
		return nil, fmt.Errorf("aggregate delivery time: %w", err)
	}

	frows, err := r.pool.Query(ctx, `
		SELECT failure_reason, COUNT(*)
		FROM notifications
		WHERE created_at >= $1 AND created_at <= $2
		  AND status IN ('failed', 'bounced')
		  AND failure_reason IS NOT NULL
		GROUP BY failure_reason`,
		start, end,
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

func (r *pgRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
