package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhernos/dynpages/internal/pages"
)

// writePageError maps pages errors onto responses; it reports false for
// errors it does not know.
func (s *Server) writePageError(w http.ResponseWriter, err error) bool {
	var verr *pages.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Validation failed",
			"details": verr.Fields,
		})
	case errors.Is(err, pages.ErrNotFound):
		writeError(w, http.StatusNotFound, "Page not found")
	case errors.Is(err, pages.ErrPageLimit):
		writeError(w, http.StatusForbidden, fmt.Sprintf("You have reached the maximum limit of %d pages", s.Pages.MaxPages()))
	case errors.Is(err, pages.ErrSlugExhausted), errors.Is(err, pages.ErrSlugTaken):
		writeError(w, http.StatusBadRequest, "Unable to generate unique slug. Please try again.")
	default:
		return false
	}
	return true
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	list, err := s.Pages.List(r.Context(), viewerID(r))
	if err != nil {
		s.internalError(w, r, "list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var in pages.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	page, err := s.Pages.Create(r.Context(), viewerID(r), in)
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "create page", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// handleGetPage returns the full page to its owner and the public fields of
// a published page to everyone else.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	viewer := viewerID(r)
	page, err := s.Pages.View(r.Context(), chi.URLParam(r, "slug"), viewer)
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "get page", err)
		}
		return
	}
	if page.OwnedBy(viewer) {
		writeJSON(w, http.StatusOK, page)
		return
	}
	writeJSON(w, http.StatusOK, page.Public())
}

func (s *Server) handlePublicPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.Pages.Published(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "get public page", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, page.Public())
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	var in pages.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	page, err := s.Pages.Update(r.Context(), chi.URLParam(r, "slug"), viewerID(r), in)
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "update page", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if err := s.Pages.Delete(r.Context(), chi.URLParam(r, "slug"), viewerID(r)); err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "delete page", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Page deleted successfully"})
}

func (s *Server) handleExportPage(w http.ResponseWriter, r *http.Request) {
	format, ok := pages.ParseExportFormat(r.URL.Query().Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unsupported export format")
		return
	}

	page, err := s.Pages.Owned(r.Context(), chi.URLParam(r, "slug"), viewerID(r))
	if err != nil {
		if !s.writePageError(w, err) {
			s.internalError(w, r, "export page", err)
		}
		return
	}

	body, err := pages.Export(page, format, s.Clock.Now())
	if err != nil {
		s.internalError(w, r, "export page", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, page.Slug, format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
