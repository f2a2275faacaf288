package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dhernos/dynpages/internal/qrcode"
)

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "Text parameter is required")
		return
	}

	png, err := qrcode.PNG(text, querySize(r))
	if errors.Is(err, qrcode.ErrTextTooLong) {
		writeError(w, http.StatusBadRequest, "Text is too long")
		return
	}
	if err != nil {
		s.internalError(w, r, "generate qr", err)
		return
	}
	writePNG(w, png)
}

func (s *Server) handleLinkPreview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": 0, "error": "URL parameter is required"})
		return
	}

	meta, err := s.Previews.Fetch(r.Context(), raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": 0, "error": "Invalid URL"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": 1, "meta": meta})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
