// Package webhook stores user-registered webhook endpoints and relays
// trigger requests to them.
package webhook

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhernos/dynpages/internal/netguard"
)

var ErrEndpointNotFound = errors.New("webhook endpoint not found")

const maxNameLength = 100

type Endpoint struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description *string   `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists endpoints. Every lookup is scoped to an owner. Lookups
// return (nil, nil) when nothing matches.
type Store interface {
	ListEndpoints(ctx context.Context, userID int64) ([]Endpoint, error)
	GetEndpoint(ctx context.Context, userID, id int64) (*Endpoint, error)
	FindActiveEndpoint(ctx context.Context, userID, id int64) (*Endpoint, error)
	CreateEndpoint(ctx context.Context, e *Endpoint) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, e *Endpoint) (*Endpoint, error)
	DeleteEndpoint(ctx context.Context, userID, id int64) (bool, error)
}

type EndpointInput struct {
	Name        *string `json:"name"`
	URL         *string `json:"url"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

// FieldError is a single invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (in EndpointInput) apply(e *Endpoint, creating bool) error {
	if in.Name != nil || creating {
		name := ""
		if in.Name != nil {
			name = strings.TrimSpace(*in.Name)
		}
		if name == "" {
			return &FieldError{Field: "name", Message: "Name is required"}
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			return &FieldError{Field: "name", Message: "Name must be at most 100 characters"}
		}
		e.Name = name
	}
	if in.URL != nil || creating {
		raw := ""
		if in.URL != nil {
			raw = strings.TrimSpace(*in.URL)
		}
		if raw == "" {
			return &FieldError{Field: "url", Message: "URL is required"}
		}
		if _, err := netguard.ParseHTTPURL(raw); err != nil {
			return &FieldError{Field: "url", Message: urlMessage(err)}
		}
		e.URL = raw
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			e.Description = nil
		} else {
			e.Description = &desc
		}
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	return nil
}

func urlMessage(err error) string {
	if errors.Is(err, netguard.ErrUnsupportedScheme) {
		return "Only HTTP/HTTPS protocols are allowed"
	}
	return "Invalid URL format"
}

// Endpoints validates and owner-scopes endpoint management.
type Endpoints struct {
	store Store
}

func NewEndpoints(store Store) *Endpoints {
	return &Endpoints{store: store}
}

func (s *Endpoints) List(ctx context.Context, userID int64) ([]Endpoint, error) {
	return s.store.ListEndpoints(ctx, userID)
}

func (s *Endpoints) Get(ctx context.Context, userID, id int64) (*Endpoint, error) {
	e, err := s.store.GetEndpoint(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEndpointNotFound
	}
	return e, nil
}

func (s *Endpoints) Create(ctx context.Context, userID int64, in EndpointInput) (*Endpoint, error) {
	e := Endpoint{UserID: userID, IsActive: true}
	if err := in.apply(&e, true); err != nil {
		return nil, err
	}
	return s.store.CreateEndpoint(ctx, &e)
}

func (s *Endpoints) Update(ctx context.Context, userID, id int64, in EndpointInput) (*Endpoint, error) {
	e, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(e, false); err != nil {
		return nil, err
	}
	return s.store.UpdateEndpoint(ctx, e)
}

func (s *Endpoints) Delete(ctx context.Context, userID, id int64) error {
	ok, err := s.store.DeleteEndpoint(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEndpointNotFound
	}
	return nil
}

// Resolve returns the URL of an active endpoint owned by userID.
func (s *Endpoints) Resolve(ctx context.Context, userID, id int64) (string, error) {
	if userID == 0 {
		return "", ErrEndpointNotFound
	}
	e, err := s.store.FindActiveEndpoint(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrEndpointNotFound
	}
	return e.URL, nil
}
