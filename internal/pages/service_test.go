package pages_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/storetest"
)

// sequence returns a generator yielding the given slugs in order, then
// numbered fallbacks.
func sequence(slugs ...string) pages.SlugGenerator {
	i := 0
	return func() (string, error) {
		defer func() { i++ }()
		if i < len(slugs) {
			return slugs[i], nil
		}
		return fmt.Sprintf("gen%05d", i), nil
	}
}

func setup(t *testing.T, gen pages.SlugGenerator) (*pages.Service, *storetest.Memory) {
	t.Helper()
	store := storetest.New()
	return pages.NewService(store, 5, 10, gen), store
}

func TestCreateEnforcesPageLimit(t *testing.T) {
	svc, _ := setup(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, 1, pages.CreateInput{Title: fmt.Sprintf("Page %d", i)}); err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
	}
	if _, err := svc.Create(ctx, 1, pages.CreateInput{Title: "Sixth"}); !errors.Is(err, pages.ErrPageLimit) {
		t.Fatalf("6th page err = %v, want ErrPageLimit", err)
	}
	if _, err := svc.Create(ctx, 2, pages.CreateInput{Title: "Other user"}); err != nil {
		t.Fatalf("limit must be per user: %v", err)
	}
}

func TestCreateLimitCheckedBeforeValidation(t *testing.T) {
	svc, _ := setup(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, 1, pages.CreateInput{Title: "ok"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Create(ctx, 1, pages.CreateInput{}); !errors.Is(err, pages.ErrPageLimit) {
		t.Fatalf("err = %v, want ErrPageLimit", err)
	}
}

func TestCreateUsesRequestedSlug(t *testing.T) {
	svc, _ := setup(t, sequence())
	p, err := svc.Create(context.Background(), 1, pages.CreateInput{Title: "Hello", Slug: "abcd1234"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Slug != "abcd1234" {
		t.Errorf("slug = %q", p.Slug)
	}
	if p.Content.Blocks == nil {
		t.Error("content should default to an empty blocks array")
	}
}

func TestCreateResolvesSlugCollision(t *testing.T) {
	svc, _ := setup(t, sequence("taken001", "taken001", "fresh002"))
	ctx := context.Background()

	if _, err := svc.Create(ctx, 1, pages.CreateInput{Title: "First", Slug: "taken001"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	p, err := svc.Create(ctx, 2, pages.CreateInput{Title: "Second", Slug: "taken001"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if p.Slug != "fresh002" {
		t.Errorf("slug = %q, want first free candidate fresh002", p.Slug)
	}
}

func TestCreateReportsSlugExhaustion(t *testing.T) {
	store := storetest.New()
	ctx := context.Background()
	seed := pages.NewService(store, 5, 10, sequence("aaaaaaaa"))
	if _, err := seed.Create(ctx, 1, pages.CreateInput{Title: "seed", Slug: "aaaaaaaa"}); err != nil {
		t.Fatal(err)
	}

	always := func() (string, error) { return "aaaaaaaa", nil }
	svc := pages.NewService(store, 5, 10, always)
	if _, err := svc.Create(ctx, 2, pages.CreateInput{Title: "x", Slug: "aaaaaaaa"}); !errors.Is(err, pages.ErrSlugExhausted) {
		t.Fatalf("err = %v, want ErrSlugExhausted", err)
	}
}

func TestCreateGeneratesSlugWhenMissing(t *testing.T) {
	svc, _ := setup(t, nil)
	p, err := svc.Create(context.Background(), 1, pages.CreateInput{Title: "No slug"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !pages.ValidSlug(p.Slug) {
		t.Errorf("generated slug %q invalid", p.Slug)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setup(t, nil)
	zero := 0

	_, err := svc.Create(context.Background(), 1, pages.CreateInput{
		Title:           "  ",
		Slug:            "BAD",
		Content:         json.RawMessage(`{"time": 1}`),
		QRExpiryMinutes: &zero,
	})
	var verr *pages.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{"title", "slug", "content", "qrExpiryMinutes"} {
		if len(verr.Fields[field]) == 0 {
			t.Errorf("missing error for %s: %v", field, verr.Fields)
		}
	}
}

func TestViewVisibility(t *testing.T) {
	svc, _ := setup(t, sequence("draft001", "live0001"))
	ctx := context.Background()

	draft, _ := svc.Create(ctx, 1, pages.CreateInput{Title: "Draft"})
	live, _ := svc.Create(ctx, 1, pages.CreateInput{Title: "Live", IsPublished: true})

	if _, err := svc.View(ctx, draft.Slug, 1); err != nil {
		t.Errorf("owner cannot see draft: %v", err)
	}
	if _, err := svc.View(ctx, draft.Slug, 2); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("other user sees draft: %v", err)
	}
	if _, err := svc.View(ctx, draft.Slug, 0); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("anonymous sees draft: %v", err)
	}
	if _, err := svc.View(ctx, live.Slug, 0); err != nil {
		t.Errorf("anonymous cannot see published page: %v", err)
	}
	if _, err := svc.View(ctx, "missing0", 1); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("missing page err = %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := setup(t, nil)
	ctx := context.Background()
	ten := 10
	p, err := svc.Create(ctx, 1, pages.CreateInput{Title: "Old", QRExpiryMinutes: &ten})
	if err != nil {
		t.Fatal(err)
	}

	var in pages.UpdateInput
	if err := json.Unmarshal([]byte(`{"title":"New","isPublished":true,"qrExpiryMinutes":null,"content":{"blocks":[{"type":"paragraph","data":{"text":"hi"}}]}}`), &in); err != nil {
		t.Fatal(err)
	}
	updated, err := svc.Update(ctx, p.Slug, 1, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "New" || !updated.IsPublished || updated.QRExpiryMinutes != nil || len(updated.Content.Blocks) != 1 {
		t.Errorf("updated = %+v", updated)
	}

	var partial pages.UpdateInput
	_ = json.Unmarshal([]byte(`{"isPublished":false}`), &partial)
	again, err := svc.Update(ctx, p.Slug, 1, partial)
	if err != nil {
		t.Fatal(err)
	}
	if again.Title != "New" || again.IsPublished {
		t.Errorf("partial update clobbered fields: %+v", again)
	}

	if _, err := svc.Update(ctx, p.Slug, 2, partial); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("non-owner update err = %v", err)
	}
	if err := svc.Delete(ctx, p.Slug, 2); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("non-owner delete err = %v", err)
	}
	if err := svc.Delete(ctx, p.Slug, 1); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if _, err := svc.Owned(ctx, p.Slug, 1); !errors.Is(err, pages.ErrNotFound) {
		t.Errorf("deleted page still found: %v", err)
	}
}
