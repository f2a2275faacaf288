// Package pages holds block-structured pages, their slugs and the
// time-limited access tokens behind QR links.
package pages

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("page not found")
	ErrPageLimit          = errors.New("page limit reached")
	ErrSlugTaken          = errors.New("slug already in use")
	ErrSlugExhausted      = errors.New("unable to generate unique slug")
	ErrInvalidAccessToken = errors.New("invalid or expired token")
)

const (
	MaxTitleLength   = 200
	MaxExpiryMinutes = 7 * 24 * 60
)

type Page struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Content         Document  `json:"content"`
	IsPublished     bool      `json:"isPublished"`
	QRExpiryMinutes *int      `json:"qrExpiryMinutes"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Document is an Editor.js style block document. Block data is kept opaque.
type Document struct {
	Time    int64   `json:"time,omitempty"`
	Version string  `json:"version,omitempty"`
	Blocks  []Block `json:"blocks"`
}

type Block struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PublicPage is what unauthenticated visitors may see.
type PublicPage struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Content Document `json:"content"`
}

func (p *Page) Public() PublicPage {
	return PublicPage{ID: p.ID, Title: p.Title, Slug: p.Slug, Content: p.Content}
}

// OwnedBy reports whether userID owns the page. Zero never owns anything.
func (p *Page) OwnedBy(userID int64) bool {
	return userID != 0 && p.UserID == userID
}

// HasExpiry reports whether access links for the page are time limited.
func (p *Page) HasExpiry() bool {
	return p.QRExpiryMinutes != nil && *p.QRExpiryMinutes > 0
}

type AccessToken struct {
	ID        int64
	PageID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
