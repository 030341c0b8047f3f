// Package health serves the HTTP liveness endpoints used by container platforms
// to keep the bot's web service alive and to probe its dependencies.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	pingTimeout     = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Pinger checks a dependency. database.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes GET / and GET /healthz.
type Server struct {
	logger  *slog.Logger
	addr    string
	engine  *gin.Engine
	db      Pinger
	gateway func() bool
}

// NewServer creates a health server listening on port. gateway reports whether
// the Discord gateway connection is up; it may be nil.
func NewServer(logger *slog.Logger, port int, db Pinger, gateway func() bool) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:  logger.With("component", "health"),
		addr:    net.JoinHostPort("", strconv.Itoa(port)),
		engine:  gin.New(),
		db:      db,
		gateway: gateway,
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/", s.handleRoot)
	s.engine.HEAD("/", s.handleRoot)
	s.engine.GET("/healthz", s.handleHealthz)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleHealthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "ok", "gateway": "unknown"}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Database health check failed", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unavailable"
		}
	}
	if s.gateway != nil {
		if s.gateway() {
			body["gateway"] = "connected"
		} else {
			body["gateway"] = "disconnected"
		}
	}

	c.JSON(status, body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Health server shutdown failed", "error", err)
		return fmt.Errorf("health server shutdown failed: %w", err)
	}
	s.logger.Info("Health server stopped")
	return nil
}
