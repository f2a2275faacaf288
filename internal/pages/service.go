package pages

import (
	"context"
	"errors"
	"fmt"
)

// Service applies ownership, quota and slug rules on top of a Store.
type Service struct {
	store        Store
	maxPages     int
	slugAttempts int
	newSlug      SlugGenerator
}

func NewService(store Store, maxPages, slugAttempts int, gen SlugGenerator) *Service {
	if gen == nil {
		gen = GenerateSlug
	}
	return &Service{store: store, maxPages: maxPages, slugAttempts: slugAttempts, newSlug: gen}
}

func (s *Service) MaxPages() int {
	return s.maxPages
}

func (s *Service) List(ctx context.Context, userID int64) ([]Page, error) {
	return s.store.ListByUser(ctx, userID)
}

// Create stores a new page for userID. The quota is checked before the input
// is validated. A missing or taken slug is replaced by a generated one.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*Page, error) {
	count, err := s.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if count >= s.maxPages {
		return nil, ErrPageLimit
	}

	page, err := in.validate()
	if err != nil {
		return nil, err
	}
	page.UserID = userID

	if page.Slug != "" {
		existing, err := s.store.FindBySlug(ctx, page.Slug)
		if err != nil {
			return nil, fmt.Errorf("find slug: %w", err)
		}
		if existing == nil {
			created, err := s.store.Insert(ctx, &page)
			if !errors.Is(err, ErrSlugTaken) {
				return created, err
			}
		}
	}

	page.Slug, err = s.freeSlug(ctx)
	if err != nil {
		return nil, err
	}
	created, err := s.store.Insert(ctx, &page)
	if errors.Is(err, ErrSlugTaken) {
		return nil, ErrSlugExhausted
	}
	return created, err
}

// freeSlug generates a batch of candidates, checks them in one lookup and
// returns the first that is unused.
func (s *Service) freeSlug(ctx context.Context) (string, error) {
	cands, err := candidates(s.newSlug, s.slugAttempts)
	if err != nil {
		return "", fmt.Errorf("generate slugs: %w", err)
	}
	taken, err := s.store.TakenSlugs(ctx, cands)
	if err != nil {
		return "", fmt.Errorf("check slugs: %w", err)
	}
	for _, c := range cands {
		if !taken[c] {
			return c, nil
		}
	}
	return "", ErrSlugExhausted
}

// View returns the page at slug if viewerID owns it or it is published.
// viewerID 0 means anonymous.
func (s *Service) View(ctx context.Context, slug string, viewerID int64) (*Page, error) {
	p, err := s.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if p == nil || (!p.OwnedBy(viewerID) && !p.IsPublished) {
		return nil, ErrNotFound
	}
	return p, nil
}

// Owned returns the page at slug only when userID owns it.
func (s *Service) Owned(ctx context.Context, slug string, userID int64) (*Page, error) {
	p, err := s.store.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.OwnedBy(userID) {
		return nil, ErrNotFound
	}
	return p, nil
}

// Published returns the page at slug only when it is published.
func (s *Service) Published(ctx context.Context, slug string) (*Page, error) {
	return s.View(ctx, slug, 0)
}

func (s *Service) Update(ctx context.Context, slug string, userID int64, in UpdateInput) (*Page, error) {
	p, err := s.Owned(ctx, slug, userID)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, slug string, userID int64) error {
	p, err := s.Owned(ctx, slug, userID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, p.ID)
}
