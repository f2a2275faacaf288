package server

import (
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dhernos/dynpages/internal/auth"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 100
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, EmailVerified: u.EmailVerified}
}

func writeInvalidInput(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "Invalid input",
		"details": map[string][]string{field: {message}},
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if !validateEmail(email) {
		writeInvalidInput(w, "email", "Invalid email address")
		return
	}
	if n := utf8.RuneCountInString(req.Password); n < minPasswordLength || n > maxPasswordLength {
		writeInvalidInput(w, "password", "Password must be between 8 and 100 characters")
		return
	}

	ctx := r.Context()
	existing, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		s.internalError(w, r, "signup: lookup by email", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "User with this email already exists")
		return
	}

	hashed, err := s.Hasher.Hash(req.Password)
	if err != nil {
		s.internalError(w, r, "signup: hash password", err)
		return
	}

	user, err := s.Users.Create(ctx, email, hashed)
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "User with this email already exists")
		return
	}
	if err != nil {
		s.internalError(w, r, "signup: create user", err)
		return
	}

	if !s.startSession(w, r, user) {
		return
	}
	s.audit(r, auth.EventSignup, user.ID, user.Email)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": newUserResponse(user)})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if !validateEmail(email) {
		writeInvalidInput(w, "email", "Invalid email address")
		return
	}
	if req.Password == "" {
		writeInvalidInput(w, "password", "Password is required")
		return
	}

	user, err := s.Users.FindByEmail(r.Context(), email)
	if err != nil {
		s.internalError(w, r, "signin: lookup by email", err)
		return
	}
	if user == nil || !s.Hasher.Compare(user.PasswordHash, req.Password) {
		s.audit(r, auth.EventSigninFailure, 0, email)
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !s.startSession(w, r, user) {
		return
	}
	s.audit(r, auth.EventSigninSuccess, user.ID, user.Email)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(user)})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *auth.User) bool {
	token, sess, err := s.Sessions.Issue(user.ID, user.Email)
	if err != nil {
		s.internalError(w, r, "issue session", err)
		return false
	}
	auth.SetSessionCookie(w, token, sess.ExpiresAt, s.Config.Production())
	return true
}

func (s *Server) audit(r *http.Request, event string, userID int64, email string) {
	err := s.Audit.Log(r.Context(), auth.AuditEvent{
		EventType: event,
		UserID:    userID,
		Email:     email,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.Logger.Warn("audit log failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFromContext(r.Context()); sess != nil {
		s.audit(r, auth.EventSignout, sess.UserID, sess.Email)
	}
	auth.ClearSessionCookie(w, s.Config.Production())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := s.Users.FindByID(r.Context(), sess.UserID)
	if err != nil {
		s.internalError(w, r, "session: load user", err)
		return
	}
	if user == nil {
		auth.ClearSessionCookie(w, s.Config.Production())
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      newUserResponse(user),
		"expiresAt": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
