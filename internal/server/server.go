package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/agenthands/claimgraph/internal/core"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

type Server struct {
	Pipeline *core.Pipeline
	log      *logger.Logger
}

func NewServer(p *core.Pipeline, log *logger.Logger) *Server {
	return &Server{Pipeline: p, log: logger.OrNop(log).With("component", "http")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("claimgraph"))

	r.GET("/healthz", s.Health)
	r.GET("/claims/:claim_id", s.GetClaim)

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) GetClaim(c *gin.Context) {
	claimID := c.Param("claim_id")

	view, err := s.Pipeline.Flatten(c.Request.Context(), claimID)
	if err != nil {
		if errors.Is(err, model.ErrClaimNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found", "claim_id": claimID})
			return
		}
		s.log.Error("failed to flatten claim", "claim_id", claimID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "graph store unavailable"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) Health(c *gin.Context) {
	counts, err := s.Pipeline.Driver.Counts(c.Request.Context())
	if err != nil {
		s.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "counts": counts})
}
