package server

import (
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dhernos/dynpages/internal/config"
	"github.com/dhernos/dynpages/internal/linkpreview"
)

type accessTokenResponse struct {
	Token         *string `json:"token"`
	ExpiresAt     *string `json:"expiresAt"`
	ExpiryMinutes int     `json:"expiryMinutes"`
	URL           string  `json:"url"`
	Message       string  `json:"message"`
}

func TestAccessTokenIssueAndVerify(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	other := env.signup("other@example.com")
	p := env.createPage(owner, map[string]interface{}{"title": "Timed", "qrExpiryMinutes": 10, "content": sampleContent})
	path := "/api/pages/" + p.Slug + "/access-token"

	if rec := env.do(http.MethodPost, path, nil, other); rec.Code != http.StatusNotFound {
		t.Errorf("non-owner issue = %d", rec.Code)
	}

	rec := env.do(http.MethodPost, path, nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue = %d %s", rec.Code, rec.Body)
	}
	var issued accessTokenResponse
	decode(t, rec, &issued)
	if issued.Token == nil || len(*issued.Token) != 64 || issued.ExpiryMinutes != 10 {
		t.Fatalf("issued = %+v", issued)
	}
	if issued.URL != testBaseURL+"/access/"+*issued.Token {
		t.Errorf("url = %q", issued.URL)
	}

	verifyPath := "/api/access-token/verify?token=" + *issued.Token
	rec = env.do(http.MethodGet, verifyPath, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify = %d %s", rec.Code, rec.Body)
	}
	var verified struct {
		Valid bool `json:"valid"`
		Page  struct {
			Slug  string `json:"slug"`
			Title string `json:"title"`
		} `json:"page"`
		ExpiresAt string `json:"expiresAt"`
	}
	decode(t, rec, &verified)
	if !verified.Valid || verified.Page.Slug != p.Slug || verified.ExpiresAt != *issued.ExpiresAt {
		t.Errorf("verified = %+v", verified)
	}

	env.clock.Advance(10 * time.Minute)
	expired := env.do(http.MethodGet, verifyPath, nil, nil)
	unknown := env.do(http.MethodGet, "/api/access-token/verify?token=deadbeef", nil, nil)
	if expired.Code != http.StatusNotFound || unknown.Code != http.StatusNotFound {
		t.Fatalf("expired=%d unknown=%d", expired.Code, unknown.Code)
	}
	if expired.Body.String() != unknown.Body.String() || errorMessage(t, expired) != "Invalid or expired token" {
		t.Errorf("expired %q vs unknown %q", expired.Body, unknown.Body)
	}

	if rec := env.do(http.MethodGet, "/api/access-token/verify", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing token = %d", rec.Code)
	}
}

func TestAccessTokenWithoutExpiry(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	p := env.createPage(owner, map[string]interface{}{"title": "Forever"})

	rec := env.do(http.MethodPost, "/api/pages/"+p.Slug+"/access-token", nil, owner)
	var res accessTokenResponse
	decode(t, rec, &res)
	if res.Token != nil || res.ExpiresAt != nil {
		t.Errorf("token minted without expiry: %+v", res)
	}
	if res.URL != testBaseURL+"/p/"+p.Slug || res.Message == "" {
		t.Errorf("response = %+v", res)
	}
	if env.store.TokenCount() != 0 {
		t.Errorf("stored %d tokens", env.store.TokenCount())
	}
}

func TestPageQR(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup("owner@example.com")
	timed := env.createPage(owner, map[string]interface{}{"title": "Timed", "qrExpiryMinutes": 5})
	plain := env.createPage(owner, map[string]interface{}{"title": "Plain"})

	rec := env.do(http.MethodGet, "/api/pages/"+timed.Slug+"/qr?size=150", nil, owner)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("timed qr = %d %s", rec.Code, rec.Header())
	}
	if !strings.HasPrefix(rec.Header().Get("X-QR-Target"), testBaseURL+"/access/") || rec.Header().Get("X-Access-Token-Expires-At") == "" {
		t.Errorf("timed headers = %v", rec.Header())
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || img.Bounds().Dx() != 150 {
		t.Errorf("png decode: %v", err)
	}

	rec = env.do(http.MethodGet, "/api/pages/"+plain.Slug+"/qr", nil, owner)
	if got := rec.Header().Get("X-QR-Target"); got != testBaseURL+"/p/"+plain.Slug {
		t.Errorf("plain target = %q", got)
	}
	if rec.Header().Get("X-Access-Token-Expires-At") != "" {
		t.Error("plain page should not mint a token")
	}
	if env.store.TokenCount() != 1 {
		t.Errorf("tokens = %d, want 1", env.store.TokenCount())
	}
}

func TestGenerateQR(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, "/api/qr/generate", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing text = %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/qr/generate?text="+strings.Repeat("a", 3000), nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("long text = %d", rec.Code)
	}

	rec := env.do(http.MethodGet, "/api/qr/generate?text=hello&size=5000", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate = %d", rec.Code)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || img.Bounds().Dx() != 1000 {
		t.Errorf("size should clamp to 1000: %v", err)
	}
}

func TestLinkPreview(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/link-preview?url=https://example.com", nil, nil)
	var ok struct {
		Success int              `json:"success"`
		Meta    linkpreview.Meta `json:"meta"`
	}
	decode(t, rec, &ok)
	if rec.Code != http.StatusOK || ok.Success != 1 || ok.Meta.Title != "Example" {
		t.Errorf("preview = %d %+v", rec.Code, ok)
	}

	if rec := env.do(http.MethodGet, "/api/link-preview", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing url = %d", rec.Code)
	}

	failing := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Previews = fakePreviews{err: errors.New("bad url")}
	})
	rec = failing.do(http.MethodGet, "/api/link-preview?url=ftp://x", nil, nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"success":0`) {
		t.Errorf("invalid url = %d %s", rec.Code, rec.Body)
	}
}
