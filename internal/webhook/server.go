package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/basecamp/konnector/internal/observability"
)

// Routes.
const (
	ClickupPath = "/clickup/webhook/call"
	TodoistPath = "/todoist/webhook/call"
	HealthPath  = "/healthz"
	StatsPath   = "/stats"
)

const shutdownTimeout = 10 * time.Second

// NewRouter mounts the controllers and the health and stats endpoints.
func NewRouter(clickupCtl, todoistCtl http.Handler, collector *observability.SessionCollector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post(ClickupPath, clickupCtl.ServeHTTP)
	r.Post(TodoistPath, todoistCtl.ServeHTTP)

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get(StatsPath, func(w http.ResponseWriter, _ *http.Request) {
		var summary observability.SessionMetrics
		if collector != nil {
			summary = collector.Summary()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})

	return r
}

// Server is the webhook HTTP server.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer returns a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: orDiscard(logger),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening for webhooks", "addr", ln.Addr().String())
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down webhook server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
