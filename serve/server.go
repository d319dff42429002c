package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/everydev1618/nbslot"
)

// Launcher provisions a notebook environment and returns its URL.
type Launcher interface {
	Launch(ctx context.Context, req nbslot.LaunchRequest) (string, error)
}

// SlotReporter reports the compute slot's occupant.
type SlotReporter interface {
	Status(ctx context.Context) (*nbslot.SlotStatus, error)
}

// Pinger checks that the container runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Addr string
	// LaunchTimeout bounds a single launch request, including time spent
	// queued behind other launches. Zero means no bound beyond the client's.
	LaunchTimeout time.Duration
}

// Server is the HTTP surface over a Launcher.
type Server struct {
	launcher  Launcher
	slot      SlotReporter
	runtime   Pinger
	broker    *EventBroker
	scheduler *Scheduler
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithScheduler runs sched alongside the server for the server's lifetime.
func WithScheduler(sched *Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// New creates a new Server.
func New(launcher Launcher, slot SlotReporter, runtime Pinger, cfg Config, opts ...Option) *Server {
	s := &Server{
		launcher:  launcher,
		slot:      slot,
		runtime:   runtime,
		broker:    NewEventBroker(),
		cfg:       cfg,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Start listens for HTTP requests. It blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.scheduler != nil {
		go s.scheduler.Start(ctx)
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("nbslot serve started", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error.
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	// Close broker first; this closes all SSE subscriber channels,
	// unblocking their handlers so the HTTP server can drain cleanly.
	s.broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", "error", err)
	}
	return nil
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/launch", s.handleLaunch)
	mux.HandleFunc("GET /api/slot", s.handleSlot)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// SSE
	mux.HandleFunc("GET /api/events", s.handleSSE)
}
