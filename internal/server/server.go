// Package server exposes the runtime over HTTP: dispatch for agents, the
// permission queue and audit trail for operators.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arcaneos/archon-runtime/internal/audit"
	"github.com/arcaneos/archon-runtime/internal/dispatch"
	"github.com/arcaneos/archon-runtime/internal/infra"
	"github.com/arcaneos/archon-runtime/internal/infra/auth"
	"github.com/arcaneos/archon-runtime/internal/prompt"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	validator auth.TokenValidator
	issuer    *auth.Issuer

	dispatcher *dispatch.Dispatcher
	registry   *tool.Registry
	trail      *audit.Trail

	// queue is non-nil only in queue prompt mode; the permission endpoints
	// return 404s without it.
	queue *prompt.Queue

	// rdb broadcasts decisions to other replicas; optional.
	rdb *redis.Client

	limiter *rate.Limiter
}

func New(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	issuer *auth.Issuer,
	dispatcher *dispatch.Dispatcher,
	registry *tool.Registry,
	trail *audit.Trail,
	queue *prompt.Queue,
	rdb *redis.Client,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger.Named("http"),
		cfg:        cfg,
		validator:  validator,
		issuer:     issuer,
		dispatcher: dispatcher,
		registry:   registry,
		trail:      trail,
		queue:      queue,
		rdb:        rdb,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Dispatch.RateLimit), cfg.Dispatch.RateBurst),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)

	// Public surface.
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.handleLogin)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Protected perimeter: any valid token.
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		r.With(s.rateLimitMiddleware).Post("/v1/dispatch", s.handleDispatch)

		r.Get("/v1/tools", s.handleListTools)
		r.Get("/v1/tools/{name}/help", s.handleToolHelp)

		// Operator surface: pending permissions and the audit trail.
		r.Group(func(r chi.Router) {
			r.Use(s.requireOperator)

			r.Route("/v1/permissions", func(r chi.Router) {
				r.Get("/", s.handleListPermissions)
				r.Post("/{id}/decide", s.handleDecidePermission)
			})

			r.Get("/v1/audit", s.handleGetAudit)
			r.Delete("/v1/audit", s.handleClearAudit)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
