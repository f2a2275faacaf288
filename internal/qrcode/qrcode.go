// Package qrcode renders PNG QR codes.
package qrcode

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const (
	DefaultSize = 300
	MinSize     = 100
	MaxSize     = 1000
	maxTextLen  = 2048
)

var (
	ErrEmptyText   = errors.New("text is required")
	ErrTextTooLong = errors.New("text too long")
)

// ClampSize returns size bounded to [MinSize, MaxSize], or DefaultSize when zero.
func ClampSize(size int) int {
	switch {
	case size == 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	}
	return size
}

// PNG encodes text as a square QR code image of the given pixel size.
func PNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextLen {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTextTooLong, maxTextLen)
	}
	size = ClampSize(size)

	code, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
