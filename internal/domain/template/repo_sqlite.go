package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	platformdb "github.com/notifyd/notifyd/internal/platform/db"
)

// sqliteRepo stores templates in SQLite. JSON payloads and timestamps are
// kept as TEXT.
type sqliteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo creates a SQLite-backed template repository.
func NewSQLiteRepo(db *sql.DB) Repository {
	return &sqliteRepo{db: db}
}

func (r *sqliteRepo) Create(ctx context.Context, t *Template) error {
	content, variables, err := marshalContent(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TemplateID, t.Name, t.Channel, string(content), string(variables), t.Active,
		platformdb.FormatTime(t.CreatedAt), platformdb.FormatTime(t.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *sqliteRepo) scanRow(row interface{ Scan(...interface{}) error }) (*Template, error) {
	var (
		t         Template
		content   string
		variables string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&t.TemplateID, &t.Name, &t.Channel, &content, &variables, &t.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var c tplContent
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return nil, fmt.Errorf("unmarshal template content: %w", err)
	}
	t.Subject = c.Subject
	t.Body = c.Body
	if err := json.Unmarshal([]byte(variables), &t.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal template variables: %w", err)
	}
	var err error
	if t.CreatedAt, err = platformdb.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = platformdb.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &t, nil
}

func (r *sqliteRepo) GetByID(ctx context.Context, id string) (*Template, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE template_id = ?`, id)
	t, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *sqliteRepo) GetActiveByName(ctx context.Context, name string) (*Template, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE name = ? AND active`, name)
	t, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template by name: %w", err)
	}
	return t, nil
}

func (r *sqliteRepo) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Template, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Channel != nil {
		where = append(where, "channel = ?")
		args = append(args, *f.Channel)
	}
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM templates`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	return items, total, nil
}

func (r *sqliteRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE templates SET active = ?, updated_at = ? WHERE template_id = ?`,
		active, platformdb.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
