package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dhernos/dynpages/internal/auth"
)

type ctxKey string

const sessionContextKey ctxKey = "session"

// requestLogger logs every request once after it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := zapcore.DebugLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := s.Logger.Check(level, "request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_ip", clientIP(r, s.trustedProxies)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}
	})
}

// loadSession attaches a valid session to the context and reissues the
// cookie once more than half of its lifetime has passed. Invalid cookies are
// ignored here; protected routes reject them in requireSession.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.Sessions.Verify(cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if s.Sessions.NeedsRefresh(sess) {
			token, fresh, err := s.Sessions.Issue(sess.UserID, sess.Email)
			if err != nil {
				s.Logger.Warn("session refresh failed", zap.Int64("user_id", sess.UserID), zap.Error(err))
			} else {
				auth.SetSessionCookie(w, token, fresh.ExpiresAt, s.Config.Production())
				sess = fresh
			}
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitAuth throttles credential endpoints per client IP.
func (s *Server) limitAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AuthLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		res, err := s.AuthLimiter.Allow(r.Context(), "ip:"+clientIP(r, s.trustedProxies))
		if err != nil {
			s.Logger.Warn("auth rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			writeRateLimited(w, res, s.Clock.Now())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) *auth.Session {
	if val, ok := ctx.Value(sessionContextKey).(*auth.Session); ok {
		return val
	}
	return nil
}

// viewerID is the session user or zero for anonymous requests.
func viewerID(r *http.Request) int64 {
	if sess := sessionFromContext(r.Context()); sess != nil {
		return sess.UserID
	}
	return 0
}
