package watchtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ytwatchtime/ytwatchtime/internal/httputil"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	// Addr is the listen address. Port 0 lets the OS pick one.
	Addr           string
	AllowedOrigins []string
	Store          Store
	Pinger         Pinger
	Logger         *slog.Logger
}

// Service owns the accumulation listener for the life of the process.
type Service struct {
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	done     chan struct{}
}

// NewRouter builds the accumulation routes without binding a listener.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := NewHandler(cfg.Store, logger)

	r := chi.NewRouter()
	r.Use(httputil.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/save_watch_time", h.SaveWatchTime)
	r.Post("/save_watch_time", h.SaveWatchTime)
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Pinger != nil {
			if err := cfg.Pinger.Ping(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unreachable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// Start binds cfg.Addr and serves in the background until Shutdown.
func Start(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("watchtime: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("watchtime: listen %s: %w", addr, err)
	}

	s := &Service{
		listener: ln,
		server: &http.Server{
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("watchtime: server stopped", "error", err)
		}
	}()

	logger.Info("watchtime: listening", "addr", ln.Addr().String())
	return s, nil
}

// Port is the bound TCP port, resolved even when Addr asked for port 0.
func (s *Service) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *Service) Addr() string { return s.listener.Addr().String() }

// Shutdown drains in-flight reports and waits for the serve loop to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("watchtime: shutdown: %w", err)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("watchtime: stopped")
	return nil
}
