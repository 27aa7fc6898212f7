// Package httpapi serves filter data over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/facets/internal/engine"
	"github.com/roach88/facets/internal/facets"
)

// ShutdownTimeout bounds how long Serve waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Options configures the server.
type Options struct {
	// IDs generates request IDs. Defaults to UUIDv7Generator.
	IDs IDGenerator

	Logger *slog.Logger

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
}

// Server is the HTTP front end of the filter engine.
type Server struct {
	engine *engine.Engine
	router *gin.Engine
	logger *slog.Logger
}

// New builds the router over e.
func New(e *engine.Engine, opts Options) *Server {
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{engine: e, router: gin.New(), logger: opts.Logger}
	s.router.Use(gin.Recovery(), requestID(opts.IDs), accessLog(opts.Logger), corsMiddleware(opts.AllowedOrigins))
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api/v1")
	api.GET("/params", s.getParams)
	api.GET("/products", s.getProducts)
	api.GET("/archive", s.getArchive)

	api.GET("/facets", s.getFacets)
	api.GET("/facets/price", s.count(facets.FilterTypePrice))
	api.GET("/facets/stock", s.count(facets.FilterTypeStock))
	api.GET("/facets/rating", s.count(facets.FilterTypeRating))
	api.GET("/facets/attribute/:taxonomy", s.count(facets.FilterTypeAttribute))
	api.GET("/facets/taxonomy/:taxonomy", s.count(facets.FilterTypeTaxonomy))

	api.GET("/taxonomies/:taxonomy/hierarchy", s.getHierarchy)
	api.POST("/cache/invalidate", s.postInvalidate)

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errc
	s.logger.Info("http server stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
