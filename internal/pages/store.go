package pages

import (
	"context"
	"time"
)

// Store persists pages. Lookups return (nil, nil) when nothing matches.
type Store interface {
	CountByUser(ctx context.Context, userID int64) (int, error)
	ListByUser(ctx context.Context, userID int64) ([]Page, error)
	FindBySlug(ctx context.Context, slug string) (*Page, error)
	// TakenSlugs returns the subset of slugs already used by a page.
	TakenSlugs(ctx context.Context, slugs []string) (map[string]bool, error)
	// Insert returns ErrSlugTaken when the slug is used concurrently.
	Insert(ctx context.Context, p *Page) (*Page, error)
	Update(ctx context.Context, p *Page) (*Page, error)
	Delete(ctx context.Context, id int64) error
}

// TokenStore persists access tokens by hash.
type TokenStore interface {
	InsertAccessToken(ctx context.Context, pageID int64, tokenHash string, expiresAt time.Time) error
	// FindAccessToken returns the token row and its page, or (nil, nil, nil).
	FindAccessToken(ctx context.Context, tokenHash string) (*AccessToken, *Page, error)
	DeleteExpiredAccessTokens(ctx context.Context, before time.Time) (int64, error)
}
