package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const templateCols = "template_id, name, channel, content, variables, active, created_at, updated_at"

// pgRepo stores templates in PostgreSQL. Content travels as a JSONB
// envelope {subject, body} and variables as a JSONB string array.
type pgRepo struct {
	pool *pgxpool.Pool
}

// NewPGRepo creates a PostgreSQL-backed template repository.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

type tplContent struct {
	Subject *string `json:"subject"`
	Body    string  `json:"body"`
}

func marshalContent(t *Template) ([]byte, []byte, error) {
	content, err := json.Marshal(tplContent{Subject: t.Subject, Body: t.Body})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal template content: %w", err)
	}
	vars := t.Variables
	if vars == nil {
		vars = []string{}
	}
	variables, err := json.Marshal(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal template variables: %w", err)
	}
	return content, variables, nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var (
		t         Template
		content   []byte
		variables []byte
	)
	if err := row.Scan(&t.TemplateID, &t.Name, &t.Channel, &content, &variables, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var c tplContent
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("unmarshal template content: %w", err)
	}
	t.Subject = c.Subject
	t.Body = c.Body
	if err := json.Unmarshal(variables, &t.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal template variables: %w", err)
	}
	return &t, nil
}

func (r *pgRepo) Create(ctx context.Context, t *Template) error {
	content, variables, err := marshalContent(t)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO templates (`+templateCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.TemplateID, t.Name, t.Channel, content, variables, t.Active, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *pgRepo) GetByID(ctx context.Context, id string) (*Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateCols+` FROM templates WHERE template_id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *pgRepo) GetActiveByName(ctx context.Context, name string) (*Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateCols+` FROM templates WHERE name = $1 AND active`, name)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template by name: %w", err)
	}
	return t, nil
}

func (r *pgRepo) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Template, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Channel != nil {
		args = append(args, *f.Channel)
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM templates`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+templateCols+` FROM templates`+clause+` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
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

func (r *pgRepo) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE templates SET active = $1, updated_at = now() WHERE template_id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
