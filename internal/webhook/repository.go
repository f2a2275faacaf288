package webhook

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	DB *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{DB: db}
}

const endpointColumns = `id, user_id, name, url, description, is_active, created_at, updated_at`

func (r *Repository) ListEndpoints(ctx context.Context, userID int64) ([]Endpoint, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM webhook_endpoints
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Endpoint{}
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Repository) GetEndpoint(ctx context.Context, userID, id int64) (*Endpoint, error) {
	return r.findOne(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *Repository) FindActiveEndpoint(ctx context.Context, userID, id int64) (*Endpoint, error) {
	return r.findOne(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1 AND user_id = $2 AND is_active = TRUE`, id, userID)
}

func (r *Repository) findOne(ctx context.Context, query string, args ...interface{}) (*Endpoint, error) {
	e, err := scanEndpoint(r.DB.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *Repository) CreateEndpoint(ctx context.Context, e *Endpoint) (*Endpoint, error) {
	return scanEndpoint(r.DB.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (user_id, name, url, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+endpointColumns,
		e.UserID, e.Name, e.URL, e.Description, e.IsActive))
}

func (r *Repository) UpdateEndpoint(ctx context.Context, e *Endpoint) (*Endpoint, error) {
	updated, err := scanEndpoint(r.DB.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET name = $3, url = $4, description = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+endpointColumns,
		e.ID, e.UserID, e.Name, e.URL, e.Description, e.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	return updated, err
}

func (r *Repository) DeleteEndpoint(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var e Endpoint
	if err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.URL, &e.Description, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
