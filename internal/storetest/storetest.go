// Package storetest provides an in-memory implementation of every store
// interface for handler and service tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dhernos/dynpages/internal/auth"
	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/uploads"
	"github.com/dhernos/dynpages/internal/webhook"
)

type Memory struct {
	mu sync.Mutex

	nextID    int64
	users     map[int64]*auth.User
	pages     map[int64]*pages.Page
	tokens    map[string]*pages.AccessToken
	endpoints map[int64]*webhook.Endpoint
	files     []uploads.File

	// Now stamps created and updated times.
	Now func() time.Time
}

func New() *Memory {
	return &Memory{
		users:     map[int64]*auth.User{},
		pages:     map[int64]*pages.Page{},
		tokens:    map[string]*pages.AccessToken{},
		endpoints: map[int64]*webhook.Endpoint{},
		Now:       time.Now,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// users

func (m *Memory) Create(_ context.Context, email, passwordHash string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, auth.ErrEmailTaken
		}
	}
	now := m.Now()
	u := &auth.User{ID: m.id(), Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// pages

func (m *Memory) CountByUser(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pages {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListByUser(_ context.Context, userID int64) ([]pages.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []pages.Page{}
	for _, p := range m.pages {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) FindBySlug(_ context.Context, slug string) (*pages.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) TakenSlugs(_ context.Context, slugs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := map[string]bool{}
	for _, s := range slugs {
		for _, p := range m.pages {
			if p.Slug == s {
				taken[s] = true
			}
		}
	}
	return taken, nil
}

func (m *Memory) Insert(_ context.Context, p *pages.Page) (*pages.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pages {
		if existing.Slug == p.Slug {
			return nil, pages.ErrSlugTaken
		}
	}
	cp := *p
	cp.ID = m.id()
	cp.CreatedAt = m.Now()
	cp.UpdatedAt = cp.CreatedAt
	if cp.Content.Blocks == nil {
		cp.Content.Blocks = []pages.Block{}
	}
	m.pages[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) Update(_ context.Context, p *pages.Page) (*pages.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[p.ID]; !ok {
		return nil, pages.ErrNotFound
	}
	cp := *p
	cp.UpdatedAt = m.Now()
	m.pages[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[id]; !ok {
		return pages.ErrNotFound
	}
	delete(m.pages, id)
	for hash, t := range m.tokens {
		if t.PageID == id {
			delete(m.tokens, hash)
		}
	}
	return nil
}

// access tokens

func (m *Memory) InsertAccessToken(_ context.Context, pageID int64, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = &pages.AccessToken{ID: m.id(), PageID: pageID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: m.Now()}
	return nil
}

func (m *Memory) FindAccessToken(_ context.Context, tokenHash string) (*pages.AccessToken, *pages.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, nil, nil
	}
	p, ok := m.pages[t.PageID]
	if !ok {
		return nil, nil, nil
	}
	tc, pc := *t, *p
	return &tc, &pc, nil
}

func (m *Memory) DeleteExpiredAccessTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, hash)
			n++
		}
	}
	return n, nil
}

// TokenCount reports how many access token rows exist.
func (m *Memory) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

// webhook endpoints

func (m *Memory) ListEndpoints(_ context.Context, userID int64) ([]webhook.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []webhook.Endpoint{}
	for _, e := range m.endpoints {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) GetEndpoint(_ context.Context, userID, id int64) (*webhook.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.endpoints[id]; ok && e.UserID == userID {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) FindActiveEndpoint(ctx context.Context, userID, id int64) (*webhook.Endpoint, error) {
	e, err := m.GetEndpoint(ctx, userID, id)
	if e == nil || err != nil || !e.IsActive {
		return nil, err
	}
	return e, nil
}

func (m *Memory) CreateEndpoint(_ context.Context, e *webhook.Endpoint) (*webhook.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = m.id()
	cp.CreatedAt = m.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.endpoints[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) UpdateEndpoint(_ context.Context, e *webhook.Endpoint) (*webhook.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.endpoints[e.ID]
	if !ok || existing.UserID != e.UserID {
		return nil, webhook.ErrEndpointNotFound
	}
	cp := *e
	cp.UpdatedAt = m.Now()
	m.endpoints[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) DeleteEndpoint(_ context.Context, userID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.endpoints[id]; ok && e.UserID == userID {
		delete(m.endpoints, id)
		return true, nil
	}
	return false, nil
}

// uploads

func (m *Memory) InsertFile(_ context.Context, f *uploads.File) (*uploads.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	cp.ID = m.id()
	cp.CreatedAt = m.Now()
	m.files = append(m.files, cp)
	out := cp
	return &out, nil
}

func (m *Memory) ListFiles(_ context.Context, userID int64) ([]uploads.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []uploads.File{}
	for _, f := range m.files {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

var (
	_ pages.Store      = (*Memory)(nil)
	_ pages.TokenStore = (*Memory)(nil)
	_ webhook.Store    = (*Memory)(nil)
	_ uploads.Store    = (*Memory)(nil)
)
