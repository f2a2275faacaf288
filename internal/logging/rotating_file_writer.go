package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// NewRotatingFileWriter returns a writer that starts a new file every day and
// removes files older than maxAge. path always points at the current file.
func NewRotatingFileWriter(path string, maxAge time.Duration) (io.WriteCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	return rotatelogs.New(
		rotationPattern(path),
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
}

// rotationPattern turns logs/server.log into logs/server.%Y%m%d.log.
func rotationPattern(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".log"
	}
	return base + ".%Y%m%d" + ext
}
