// Package server exposes the operator HTTP surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/recorder"
)

// Trigger runs a job by name. *scheduler.Scheduler satisfies it.
type Trigger interface {
	Trigger(job string) (*model.RunReport, error)
	Running(job string) bool
}

// PriceReader reads stored series.
type PriceReader interface {
	Range(ctx context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error)
}

// SignalSource computes analytics signals.
type SignalSource interface {
	Signal(ctx context.Context, ticker string) (*model.Signal, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Trigger Trigger
	Runs    recorder.Reader
	Prices  PriceReader
	Signals SignalSource
	Jobs    []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger))

	api := r.Group("/api")
	NewHealthController(deps.Trigger, deps.Jobs).RegisterRoutes(api)
	NewIngestController(deps.Trigger, deps.Runs, deps.Jobs).RegisterRoutes(api)
	NewPriceController(deps.Prices, deps.Signals).RegisterRoutes(api)
	return r
}

// Server wraps the HTTP listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New creates a server listening on addr.
func New(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
