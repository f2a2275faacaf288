package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dhernos/dynpages/internal/uploads"
)

// multipartOverhead leaves room for boundaries and part headers.
const multipartOverhead = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.Uploads.MaxBytes()
	tooLarge := fmt.Sprintf("File too large. Maximum size is %dMB", maxBytes>>20)

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusBadRequest, tooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		writeError(w, http.StatusBadRequest, tooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		s.internalError(w, r, "upload: read file", err)
		return
	}

	saved, err := s.Uploads.Save(r.Context(), viewerID(r), header.Filename, header.Header.Get("Content-Type"), data)
	switch {
	case err == nil:
	case errors.Is(err, uploads.ErrEmpty):
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	case errors.Is(err, uploads.ErrTooLarge):
		writeError(w, http.StatusBadRequest, tooLarge)
		return
	case errors.Is(err, uploads.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "Invalid file type. Only images are allowed")
		return
	default:
		s.internalError(w, r, "upload: save", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": 1,
		"file": map[string]interface{}{
			"url":  saved.URL,
			"id":   saved.FileID,
			"name": saved.Name,
			"size": saved.Size,
		},
	})
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	files, err := s.Uploads.List(r.Context(), viewerID(r))
	if err != nil {
		s.internalError(w, r, "list uploads", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

// uploadedFiles serves stored uploads without directory listings.
func (s *Server) uploadedFiles() http.Handler {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.Uploads.Dir())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/uploads/" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
