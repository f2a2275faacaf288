package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dhernos/dynpages/internal/netguard"
	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/webhook"
)

func (s *Server) writeEndpointError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ferr *webhook.FieldError
	switch {
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Validation failed",
			"details": map[string][]string{ferr.Field: {ferr.Message}},
		})
	case errors.Is(err, webhook.ErrEndpointNotFound):
		writeError(w, http.StatusNotFound, "Webhook endpoint not found")
	default:
		s.internalError(w, r, op, err)
	}
}

func endpointID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	list, err := s.Endpoints.List(r.Context(), viewerID(r))
	if err != nil {
		s.internalError(w, r, "list webhook endpoints", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var in webhook.EndpointInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := s.Endpoints.Create(r.Context(), viewerID(r), in)
	if err != nil {
		s.writeEndpointError(w, r, "create webhook endpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := endpointID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid webhook ID")
		return
	}
	e, err := s.Endpoints.Get(r.Context(), viewerID(r), id)
	if err != nil {
		s.writeEndpointError(w, r, "get webhook endpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := endpointID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid webhook ID")
		return
	}
	var in webhook.EndpointInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := s.Endpoints.Update(r.Context(), viewerID(r), id, in)
	if err != nil {
		s.writeEndpointError(w, r, "update webhook endpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := endpointID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid webhook ID")
		return
	}
	if err := s.Endpoints.Delete(r.Context(), viewerID(r), id); err != nil {
		s.writeEndpointError(w, r, "delete webhook endpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type triggerRequest struct {
	WebhookID   json.RawMessage `json:"webhookId"`
	WebhookURL  string          `json:"webhookUrl"`
	Payload     json.RawMessage `json:"payload"`
	PageSlug    string          `json:"pageSlug"`
	AccessToken string          `json:"accessToken"`
}

type triggerResponse struct {
	Success bool `json:"success"`
	*webhook.Delivery
}

// rateKey identifies the caller: the session user when signed in, the client
// address otherwise.
func (s *Server) rateKey(r *http.Request) string {
	if id := viewerID(r); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + clientIP(r, s.trustedProxies)
}

func (s *Server) handleTriggerWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := s.WebhookLimiter.Allow(ctx, s.rateKey(r))
	if err != nil {
		s.Logger.Warn("webhook rate limiter unavailable", zap.Error(err))
	} else {
		if !res.Allowed {
			writeRateLimited(w, res, s.Clock.Now())
			return
		}
		setRateHeaders(w, res)
	}

	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var target string
	switch {
	case len(req.WebhookID) > 0 && string(req.WebhookID) != "null":
		var id int64
		if err := json.Unmarshal(req.WebhookID, &id); err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid webhook ID")
			return
		}
		owner, err := s.triggerOwner(ctx, r, req)
		if err != nil {
			s.internalError(w, r, "trigger webhook: resolve owner", err)
			return
		}
		target, err = s.Endpoints.Resolve(ctx, owner, id)
		if errors.Is(err, webhook.ErrEndpointNotFound) {
			writeError(w, http.StatusNotFound, "Webhook endpoint not found or inactive")
			return
		}
		if err != nil {
			s.internalError(w, r, "trigger webhook: resolve endpoint", err)
			return
		}
	case req.WebhookURL != "":
		if !s.Config.Webhook.AllowRawURL {
			writeError(w, http.StatusBadRequest, "Direct webhook URLs are disabled; use a registered endpoint")
			return
		}
		target = req.WebhookURL
	default:
		writeError(w, http.StatusBadRequest, "Either webhookId or webhookUrl must be provided")
		return
	}

	delivery, err := s.Relay.Execute(ctx, target, req.Payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, triggerResponse{Success: true, Delivery: delivery})
	case errors.Is(err, netguard.ErrUnsupportedScheme):
		writeError(w, http.StatusBadRequest, "Only HTTP/HTTPS protocols are allowed")
	case errors.Is(err, netguard.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "Invalid URL format")
	case errors.Is(err, webhook.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Webhook request timeout (%d seconds exceeded)", int(s.Config.Webhook.Timeout.Seconds())),
		})
	case errors.Is(err, webhook.ErrExecution):
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "Failed to execute webhook",
			"details": err.Error(),
		})
	default:
		s.internalError(w, r, "trigger webhook", err)
	}
}

// triggerOwner decides whose endpoints a trigger may use. A request made
// from a page resolves to that page's owner: the page behind a live access
// token, else a published page. Only requests without page context fall back
// to the signed in user. Zero means nobody.
func (s *Server) triggerOwner(ctx context.Context, r *http.Request, req triggerRequest) (int64, error) {
	if req.AccessToken != "" {
		owner, err := s.Tokens.Owner(ctx, req.AccessToken)
		if err == nil {
			return owner, nil
		}
		if !errors.Is(err, pages.ErrInvalidAccessToken) {
			return 0, err
		}
	}
	if req.PageSlug != "" {
		page, err := s.Pages.Published(ctx, req.PageSlug)
		if err == nil {
			return page.UserID, nil
		}
		if !errors.Is(err, pages.ErrNotFound) {
			return 0, err
		}
	}
	if req.AccessToken != "" || req.PageSlug != "" {
		return 0, nil
	}
	return viewerID(r), nil
}
