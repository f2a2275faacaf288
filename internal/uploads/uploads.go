// Package uploads stores editor image uploads on local disk and records
// their metadata.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmpty           = errors.New("no file uploaded")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type File struct {
	ID        int64     `json:"id"`
	FileID    string    `json:"fileId"`
	URL       string    `json:"url"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	InsertFile(ctx context.Context, f *File) (*File, error)
	ListFiles(ctx context.Context, userID int64) ([]File, error)
}

type Service struct {
	store    Store
	dir      string
	maxBytes int64
}

func NewService(store Store, dir string, maxBytes int64) *Service {
	return &Service{store: store, dir: dir, maxBytes: maxBytes}
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Service) Dir() string {
	return s.dir
}

// Save validates and writes data under a fresh id directory, then records it.
// declaredType may be empty, in which case the content is sniffed.
func (s *Service) Save(ctx context.Context, userID int64, name, declaredType string, data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	mimeType := strings.ToLower(strings.TrimSpace(declaredType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	ext, ok := allowedTypes[mimeType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	fileID := uuid.NewString()
	fileName := sanitizeName(name, ext)

	dir := filepath.Join(s.dir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	f := &File{
		FileID:   fileID,
		URL:      "/uploads/" + fileID + "/" + url.PathEscape(fileName),
		UserID:   userID,
		Name:     fileName,
		Size:     int64(len(data)),
		MimeType: mimeType,
	}
	saved, err := s.store.InsertFile(ctx, f)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("record upload: %w", err)
	}
	return saved, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]File, error) {
	return s.store.ListFiles(ctx, userID)
}

// sanitizeName keeps the base name's safe characters and replaces any
// extension with ext, the one matching the validated content type.
func sanitizeName(name, ext string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		stem = "file"
	}
	if len(stem) > 120 {
		stem = stem[:120]
	}
	return stem + "." + ext
}
