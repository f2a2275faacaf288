package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dhernos/dynpages/internal/pages"
)

var sampleContent = map[string]interface{}{
	"blocks": []map[string]interface{}{
		{"type": "header", "data": map[string]interface{}{"text": "Welcome", "level": 1}},
		{"type": "paragraph", "data": map[string]interface{}{"text": "Hello <b>there</b>"}},
	},
}

func TestPageLimit(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup("ada@example.com")

	for i := 0; i < 5; i++ {
		env.createPage(cookie, map[string]interface{}{"title": "Page"})
	}
	rec := env.do(http.MethodPost, "/api/pages", map[string]interface{}{"title": "One too many"}, cookie)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("6th page = %d %s", rec.Code, rec.Body)
	}
	if got := errorMessage(t, rec); got != "You have reached the maximum limit of 5 pages" {
		t.Errorf("error = %q", got)
	}

	rec = env.do(http.MethodGet, "/api/pages", nil, cookie)
	var list []pages.Page
	decode(t, rec, &list)
	if len(list) != 5 {
		t.Errorf("list = %d pages", len(list))
	}
}

func TestCreatePageValidation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup("ada@example.com")

	rec := env.do(http.MethodPost, "/api/pages", map[string]interface{}{"title": "  ", "qrExpiryMinutes": 0}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Error   string              `json:"error"`
		Details map[string][]string `json:"details"`
	}
	decode(t, rec, &body)
	if body.Error != "Validation failed" || len(body.Details["title"]) == 0 || len(body.Details["qrExpiryMinutes"]) == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestCreatePageSlugCollision(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup("alice@example.com")
	bob := env.signup("bob@example.com")

	first := env.createPage(alice, map[string]interface{}{"title": "Menu", "slug": "menu2024"})
	if first.Slug != "menu2024" {
		t.Fatalf("requested slug not used: %q", first.Slug)
	}
	second := env.createPage(bob, map[string]interface{}{"title": "Menu", "slug": "menu2024"})
	if second.Slug == "menu2024" || !pages.ValidSlug(second.Slug) {
		t.Errorf("collision slug = %q", second.Slug)
	}
}

func TestPageVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	other := env.signup("other@example.com")

	p := env.createPage(owner, map[string]interface{}{"title": "Draft", "content": sampleContent})
	path := "/api/pages/" + p.Slug

	rec := env.do(http.MethodGet, path, nil, owner)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userId"`) {
		t.Fatalf("owner view = %d %s", rec.Code, rec.Body)
	}
	for name, c := range map[string]*http.Cookie{"anonymous": nil, "other user": other} {
		if rec := env.do(http.MethodGet, path, nil, c); rec.Code != http.StatusNotFound {
			t.Errorf("%s sees draft: %d", name, rec.Code)
		}
	}
	if rec := env.do(http.MethodGet, "/api/public/pages/"+p.Slug, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("public draft = %d", rec.Code)
	}

	if rec := env.do(http.MethodPut, path, map[string]interface{}{"isPublished": true}, owner); rec.Code != http.StatusOK {
		t.Fatalf("publish = %d %s", rec.Code, rec.Body)
	}

	rec = env.do(http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous published view = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"userId"`) || strings.Contains(rec.Body.String(), `"isPublished"`) {
		t.Errorf("public view leaks owner fields: %s", rec.Body)
	}
	var pub pages.PublicPage
	decode(t, rec, &pub)
	if pub.Title != "Draft" || len(pub.Content.Blocks) != 2 {
		t.Errorf("public page = %+v", pub)
	}
}

func TestUpdatePage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	other := env.signup("other@example.com")
	p := env.createPage(owner, map[string]interface{}{"title": "Menu", "qrExpiryMinutes": 30})
	path := "/api/pages/" + p.Slug

	if rec := env.do(http.MethodPut, path, map[string]interface{}{"title": "Stolen"}, other); rec.Code != http.StatusNotFound {
		t.Errorf("non-owner update = %d", rec.Code)
	}
	if rec := env.do(http.MethodPut, path, map[string]interface{}{"title": "x"}, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous update = %d", rec.Code)
	}

	rec := env.do(http.MethodPut, path, `{"title":"Lunch menu"}`, owner)
	var updated pages.Page
	decode(t, rec, &updated)
	if updated.Title != "Lunch menu" || updated.QRExpiryMinutes == nil || *updated.QRExpiryMinutes != 30 {
		t.Errorf("partial update = %+v", updated)
	}

	rec = env.do(http.MethodPut, path, `{"qrExpiryMinutes":null}`, owner)
	decode(t, rec, &updated)
	if updated.QRExpiryMinutes != nil {
		t.Errorf("explicit null should clear expiry, got %v", *updated.QRExpiryMinutes)
	}

	rec = env.do(http.MethodPut, path, `{"content":{"time":1}}`, owner)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("content without blocks = %d", rec.Code)
	}
}

func TestDeletePage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	other := env.signup("other@example.com")
	p := env.createPage(owner, map[string]interface{}{"title": "Menu", "isPublished": true})
	path := "/api/pages/" + p.Slug

	if rec := env.do(http.MethodDelete, path, nil, other); rec.Code != http.StatusNotFound {
		t.Errorf("non-owner delete = %d", rec.Code)
	}
	if rec := env.do(http.MethodDelete, path, nil, owner); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, path, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted page still visible: %d", rec.Code)
	}
}

func TestExportPage(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	p := env.createPage(owner, map[string]interface{}{"title": "Launch", "content": sampleContent})
	base := "/api/pages/" + p.Slug + "/export"

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"", "application/json", `"title": "Launch"`},
		{"markdown", "text/markdown; charset=utf-8", "# Welcome"},
		{"html", "text/html; charset=utf-8", "<h1>Welcome</h1>"},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			rec := env.do(http.MethodGet, base+"?format="+tt.format, nil, owner)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d %s", rec.Code, rec.Body)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("content type = %q", got)
			}
			if !strings.Contains(rec.Header().Get("Content-Disposition"), p.Slug+".") {
				t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rec.Body)
			}
		})
	}

	if rec := env.do(http.MethodGet, base+"?format=pdf", nil, owner); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d", rec.Code)
	}
}

func TestPagesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/pages", "/api/upload", "/api/webhooks/endpoints"} {
		rec := env.do(http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "Unauthorized" {
			t.Errorf("%s = %d %s", path, rec.Code, rec.Body)
		}
	}
}
