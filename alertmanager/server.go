package alertmanager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server hosts the Alertmanager webhook endpoint. Grounded on metrics.Server's HTTP-server
// idiom: a dedicated mux, non-blocking Start, graceful Stop with a bounded shutdown timeout.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the webhook HTTP server on addr, serving handler at path.
func NewServer(addr, path string, handler *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving the webhook endpoint. Non-blocking.
func (s *Server) Start() {
	go func() {
		s.logger.Info("alertmanager webhook server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("alertmanager webhook server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the webhook server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("alertmanager webhook server shutdown error", zap.Error(fmt.Errorf("shutdown: %w", err)))
	}
}
