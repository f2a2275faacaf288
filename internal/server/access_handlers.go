package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/qrcode"
)

func (s *Server) permanentURL(slug string) string {
	return s.Config.BaseURL + "/p/" + url.PathEscape(slug)
}

func (s *Server) accessURL(token string) string {
	return s.Config.BaseURL + "/access/" + token
}

func (s *Server) handleIssueAccessToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := s.Pages.Owned(ctx, chi.URLParam(r, "slug"), viewerID(r))
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "issue access token: load page", err)
		}
		return
	}

	issued, err := s.Tokens.Issue(ctx, page)
	if err != nil {
		s.internalError(w, r, "issue access token", err)
		return
	}
	if issued == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":     nil,
			"expiresAt": nil,
			"url":       s.permanentURL(page.Slug),
			"message":   "Page has no expiry configured",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":         issued.Token,
		"expiresAt":     issued.ExpiresAt.UTC().Format(time.RFC3339),
		"expiryMinutes": *page.QRExpiryMinutes,
		"url":           s.accessURL(issued.Token),
	})
}

func (s *Server) handleVerifyAccessToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	page, expiresAt, err := s.Tokens.Verify(r.Context(), token)
	if errors.Is(err, pages.ErrInvalidAccessToken) {
		writeError(w, http.StatusNotFound, "Invalid or expired token")
		return
	}
	if err != nil {
		s.internalError(w, r, "verify access token", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"page":      page,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}

// handlePageQR renders a QR code for the page. Pages with an expiry get a
// freshly minted access link, others their permanent URL.
func (s *Server) handlePageQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := s.Pages.Owned(ctx, chi.URLParam(r, "slug"), viewerID(r))
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "page qr: load page", err)
		}
		return
	}

	target := s.permanentURL(page.Slug)
	issued, err := s.Tokens.Issue(ctx, page)
	if err != nil {
		s.internalError(w, r, "page qr: issue access token", err)
		return
	}
	if issued != nil {
		target = s.accessURL(issued.Token)
		w.Header().Set("X-Access-Token-Expires-At", issued.ExpiresAt.UTC().Format(time.RFC3339))
	}

	png, err := qrcode.PNG(target, querySize(r))
	if err != nil {
		s.internalError(w, r, "page qr: encode", err)
		return
	}
	w.Header().Set("X-QR-Target", target)
	writePNG(w, png)
}

func querySize(r *http.Request) int {
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return qrcode.ClampSize(size)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
