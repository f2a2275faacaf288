package pages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type CreateInput struct {
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Content         json.RawMessage `json:"content"`
	IsPublished     bool            `json:"isPublished"`
	QRExpiryMinutes *int            `json:"qrExpiryMinutes"`
}

type UpdateInput struct {
	Title           *string         `json:"title"`
	Content         json.RawMessage `json:"content"`
	IsPublished     *bool           `json:"isPublished"`
	QRExpiryMinutes Optional[int]   `json:"qrExpiryMinutes"`
}

func validateTitle(errs *ValidationError, title string) string {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		errs.add("title", "Title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs.add("title", fmt.Sprintf("Title must be less than %d characters", MaxTitleLength))
	}
	return title
}

func validateExpiry(errs *ValidationError, minutes *int) {
	if minutes == nil {
		return
	}
	if *minutes < 1 || *minutes > MaxExpiryMinutes {
		errs.add("qrExpiryMinutes", fmt.Sprintf("QR expiry must be between 1 and %d minutes", MaxExpiryMinutes))
	}
}

// parseContent accepts a document carrying a blocks array. Absent content is
// an empty document.
func parseContent(errs *ValidationError, raw json.RawMessage) Document {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Document{Blocks: []Block{}}
	}

	var probe struct {
		Time    *float64 `json:"time"`
		Version *string  `json:"version"`
		Blocks  *[]Block `json:"blocks"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		errs.add("content", "Content must be a document with a blocks array")
		return Document{}
	}
	if probe.Blocks == nil {
		errs.add("content", "Content must contain a blocks array")
		return Document{}
	}

	doc := Document{Blocks: *probe.Blocks}
	if probe.Time != nil {
		doc.Time = int64(*probe.Time)
	}
	if probe.Version != nil {
		doc.Version = *probe.Version
	}
	for i, b := range doc.Blocks {
		if strings.TrimSpace(b.Type) == "" {
			errs.add("content", fmt.Sprintf("Block %d is missing a type", i))
		}
	}
	return doc
}

func (in CreateInput) validate() (Page, error) {
	var errs ValidationError
	page := Page{
		Title:           validateTitle(&errs, in.Title),
		Slug:            strings.TrimSpace(in.Slug),
		IsPublished:     in.IsPublished,
		QRExpiryMinutes: in.QRExpiryMinutes,
	}
	if page.Slug != "" && !ValidSlug(page.Slug) {
		errs.add("slug", "Invalid slug format")
	}
	page.Content = parseContent(&errs, in.Content)
	validateExpiry(&errs, in.QRExpiryMinutes)
	return page, errs.orNil()
}

// apply validates the input and writes the present fields onto p.
func (in UpdateInput) apply(p *Page) error {
	var errs ValidationError
	if in.Title != nil {
		p.Title = validateTitle(&errs, *in.Title)
	}
	if len(in.Content) > 0 {
		p.Content = parseContent(&errs, in.Content)
	}
	if in.IsPublished != nil {
		p.IsPublished = *in.IsPublished
	}
	if in.QRExpiryMinutes.Set {
		validateExpiry(&errs, in.QRExpiryMinutes.Value)
		p.QRExpiryMinutes = in.QRExpiryMinutes.Value
	}
	return errs.orNil()
}
