package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytwatchtime/ytwatchtime/internal/docs"
	"github.com/ytwatchtime/ytwatchtime/internal/httputil"
	"github.com/ytwatchtime/ytwatchtime/internal/ratelimit"
	"github.com/ytwatchtime/ytwatchtime/internal/resolve"
	"github.com/ytwatchtime/ytwatchtime/internal/validate"
	"github.com/ytwatchtime/ytwatchtime/internal/watchtime"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports stored row counts for /api/stats.
type Counter interface {
	Counts(ctx context.Context) (channels, videos int64, err error)
}

type Config struct {
	Resolver *resolve.Resolver

	// WatchTime serves stored totals; usually the same store the
	// accumulation listener writes to.
	WatchTime watchtime.Store
	Counter   Counter
	Pinger    Pinger
	BaseURL   string

	// EnableDocs serves the API reference under /api/docs.
	EnableDocs bool

	// ReportBaseURL is the accumulation listener's base URL, handed to
	// players alongside each resolved video.
	ReportBaseURL string

	// ResolveRate and ResolveBurst bound resolutions per client.
	ResolveRate  float64
	ResolveBurst int
	Logger       *slog.Logger
}

type Server struct {
	router           chi.Router
	pinger           Pinger
	counter          Counter
	logger           *slog.Logger
	resolveHandler   *resolve.Handler
	watchTimeHandler *watchtime.Handler
	resolveLimiter   *ratelimit.Limiter
	docs             *docs.Handler
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(httputil.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))

	s := &Server{router: r, pinger: cfg.Pinger, counter: cfg.Counter, logger: logger}

	if cfg.Resolver != nil {
		rate, burst := cfg.ResolveRate, cfg.ResolveBurst
		if rate <= 0 {
			rate = 1
		}
		if burst <= 0 {
			burst = 5
		}
		s.resolveHandler = resolve.NewHandler(cfg.Resolver, cfg.ReportBaseURL, logger)
		s.resolveLimiter = ratelimit.NewLimiter(rate, burst, logger)
	}
	if cfg.EnableDocs {
		s.docs = docs.New(cfg.BaseURL, cfg.ReportBaseURL)
	}
	if cfg.WatchTime != nil {
		s.watchTimeHandler = watchtime.NewHandler(cfg.WatchTime, logger)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.resolveLimiter != nil {
		s.resolveLimiter.Stop()
	}
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)

	if s.resolveHandler != nil {
		s.router.With(s.resolveLimiter.Middleware).Post("/api/resolve", s.resolveHandler.Resolve)
	}
	if s.watchTimeHandler != nil {
		s.router.Get("/api/videos/{id}/watch-time", s.watchTimeHandler.GetWatchTime)
	}
	if s.counter != nil {
		s.router.Get("/api/stats", s.handleStats)
	}
	if s.docs != nil {
		s.router.Get("/api/docs", s.docs.Page)
		s.router.Get("/api/docs/openapi.yaml", s.docs.Spec)
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Error("server: health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
}

type statsResponse struct {
	Channels int64 `json:"channels"`
	Videos   int64 `json:"videos"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	channels, videos, err := s.counter.Counts(r.Context())
	if err != nil {
		s.logger.Error("server: failed to count rows", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statsResponse{Channels: channels, Videos: videos})
}
