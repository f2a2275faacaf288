package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dhernos/dynpages/internal/database"
)

type Repository struct {
	DB *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{DB: db}
}

const pageColumns = `id, user_id, title, slug, content, is_published, qr_expiry_minutes, created_at, updated_at`

func (r *Repository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM pages WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Page, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+pageColumns+`
		FROM pages
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*Page, error) {
	return r.findOne(ctx, `SELECT `+pageColumns+` FROM pages WHERE slug = $1`, slug)
}

func (r *Repository) findOne(ctx context.Context, query string, arg interface{}) (*Page, error) {
	p, err := scanPage(r.DB.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) TakenSlugs(ctx context.Context, slugs []string) (map[string]bool, error) {
	rows, err := r.DB.Query(ctx, `SELECT slug FROM pages WHERE slug = ANY($1)`, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		taken[s] = true
	}
	return taken, rows.Err()
}

func (r *Repository) Insert(ctx context.Context, p *Page) (*Page, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO pages (user_id, title, slug, content, is_published, qr_expiry_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+pageColumns,
		p.UserID, p.Title, p.Slug, p.Content, p.IsPublished, p.QRExpiryMinutes)
	created, err := scanPage(row)
	if database.IsUniqueViolation(err) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert page: %w", err)
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, p *Page) (*Page, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE pages
		SET title = $2, content = $3, is_published = $4, qr_expiry_minutes = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+pageColumns,
		p.ID, p.Title, p.Content, p.IsPublished, p.QRExpiryMinutes)
	updated, err := scanPage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) InsertAccessToken(ctx context.Context, pageID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO page_access_tokens (page_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, pageID, tokenHash, expiresAt)
	return err
}

func (r *Repository) FindAccessToken(ctx context.Context, tokenHash string) (*AccessToken, *Page, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT t.id, t.page_id, t.token_hash, t.expires_at, t.created_at,
		       p.id, p.user_id, p.title, p.slug, p.content, p.is_published, p.qr_expiry_minutes, p.created_at, p.updated_at
		FROM page_access_tokens t
		JOIN pages p ON p.id = t.page_id
		WHERE t.token_hash = $1
	`, tokenHash)

	var (
		t AccessToken
		p Page
	)
	err := row.Scan(
		&t.ID, &t.PageID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&p.ID, &p.UserID, &p.Title, &p.Slug, &p.Content, &p.IsPublished, &p.QRExpiryMinutes, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &t, &p, nil
}

func (r *Repository) DeleteExpiredAccessTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM page_access_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPage(row pgx.Row) (*Page, error) {
	var p Page
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Slug, &p.Content, &p.IsPublished, &p.QRExpiryMinutes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if p.Content.Blocks == nil {
		p.Content.Blocks = []Block{}
	}
	return &p, nil
}
