package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dhernos/dynpages/internal/auth"
	"github.com/dhernos/dynpages/internal/config"
	"github.com/dhernos/dynpages/internal/linkpreview"
	"github.com/dhernos/dynpages/internal/pages"
	"github.com/dhernos/dynpages/internal/ratelimit"
	"github.com/dhernos/dynpages/internal/uploads"
	"github.com/dhernos/dynpages/internal/webhook"
)

// UserStore is the subset of the user repository the handlers need.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	FindByID(ctx context.Context, id int64) (*auth.User, error)
}

type Relay interface {
	Execute(ctx context.Context, target string, payload json.RawMessage) (*webhook.Delivery, error)
}

type PreviewFetcher interface {
	Fetch(ctx context.Context, raw string) (*linkpreview.Meta, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Clock          clockwork.Clock
	Users          UserStore
	Hasher         auth.PasswordHasher
	Sessions       *auth.SessionManager
	Pages          *pages.Service
	Tokens         *pages.AccessTokenService
	Endpoints      *webhook.Endpoints
	Relay          Relay
	Uploads        *uploads.Service
	Previews       PreviewFetcher
	WebhookLimiter ratelimit.Limiter
	AuthLimiter    ratelimit.Limiter
	Audit          *auth.AuditLogger
	DB             Pinger
}

type Server struct {
	Deps
	Config         config.Config
	Logger         *zap.Logger
	trustedProxies []net.IPNet
}

func NewServer(cfg config.Config, logger *zap.Logger, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Deps:           deps,
		Config:         cfg,
		Logger:         logger,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.secureHeaders)
	r.Use(s.loadSession)

	r.Get("/healthz", s.handleHealth)

	r.With(s.limitAuth).Post("/api/auth/signup", s.handleSignup)
	r.With(s.limitAuth).Post("/api/auth/signin", s.handleSignin)
	r.Post("/api/auth/signout", s.handleSignout)
	r.Get("/api/auth/session", s.handleSession)

	r.Get("/api/pages/{slug}", s.handleGetPage)
	r.Get("/api/public/pages/{slug}", s.handlePublicPage)
	r.Get("/api/access-token/verify", s.handleVerifyAccessToken)
	r.Post("/api/webhooks/trigger", s.handleTriggerWebhook)
	r.Get("/api/qr/generate", s.handleGenerateQR)
	r.Get("/api/link-preview", s.handleLinkPreview)
	r.Handle("/uploads/*", s.uploadedFiles())

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireSession)

		pr.Get("/api/pages", s.handleListPages)
		pr.Post("/api/pages", s.handleCreatePage)
		pr.Put("/api/pages/{slug}", s.handleUpdatePage)
		pr.Delete("/api/pages/{slug}", s.handleDeletePage)
		pr.Get("/api/pages/{slug}/export", s.handleExportPage)
		pr.Post("/api/pages/{slug}/access-token", s.handleIssueAccessToken)
		pr.Get("/api/pages/{slug}/qr", s.handlePageQR)

		pr.Get("/api/webhooks/endpoints", s.handleListEndpoints)
		pr.Post("/api/webhooks/endpoints", s.handleCreateEndpoint)
		pr.Get("/api/webhooks/endpoints/{id}", s.handleGetEndpoint)
		pr.Put("/api/webhooks/endpoints/{id}", s.handleUpdateEndpoint)
		pr.Delete("/api/webhooks/endpoints/{id}", s.handleDeleteEndpoint)

		pr.Post("/api/upload", s.handleUpload)
		pr.Get("/api/upload", s.handleListUploads)
	})

	return r
}
