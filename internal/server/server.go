// Package server exposes a LiveGraph over HTTP.
//
// The API mirrors the engine's edit operations one to one. Edits return as
// soon as the graph is updated; computation happens on the engine's
// workers. Reading a slot's pixels waits for the node to become Clean.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/node"
	"github.com/roach88/texgraph/internal/store"
)

// DefaultReadTimeout bounds how long a pixel read waits for a node.
const DefaultReadTimeout = 30 * time.Second

// CacheStats reports on the persistent buffer store.
type CacheStats interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Server serves one LiveGraph.
type Server struct {
	lg          *engine.LiveGraph
	app         *fiber.App
	logger      *slog.Logger
	readTimeout time.Duration
	loadImage   node.ImageLoader
	cache       CacheStats
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadTimeout bounds pixel reads. Zero or negative keeps the default.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithImageLoader replaces the loader used for image nodes.
func WithImageLoader(load node.ImageLoader) Option {
	return func(s *Server) {
		s.loadImage = load
	}
}

// WithCacheStats exposes persistent cache statistics on GET /stats.
func WithCacheStats(c CacheStats) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// New builds the server and registers its routes.
func New(lg *engine.LiveGraph, opts ...Option) *Server {
	s := &Server{
		lg:          lg,
		logger:      slog.Default(),
		readTimeout: DefaultReadTimeout,
		loadImage:   buffer.LoadPNG,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New()
	s.routes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled, then shuts down.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info("server stopped")
	return <-errCh
}

func (s *Server) routes() {
	s.app.Get("/graph", s.getGraph)
	s.app.Get("/stats", s.getStats)
	s.app.Get("/changes", s.getChanges)
	s.app.Post("/process", s.postProcess)
	s.app.Post("/materialize", s.postMaterialize)
	s.app.Put("/settings", s.putSettings)

	s.app.Get("/nodes", s.listNodes)
	s.app.Post("/nodes", s.createNode)
	s.app.Get("/nodes/:id", s.getNode)
	s.app.Delete("/nodes/:id", s.deleteNode)
	s.app.Put("/nodes/:id/value", s.putValue)
	s.app.Put("/nodes/:id/mix", s.putMix)
	s.app.Put("/nodes/:id/strength", s.putStrength)
	s.app.Put("/nodes/:id/resize", s.putResize)
	s.app.Post("/nodes/:id/watch", s.watch)
	s.app.Delete("/nodes/:id/watch", s.unwatch)
	s.app.Get("/nodes/:id/slots/:slot", s.getSlot)
	s.app.Delete("/nodes/:id/inputs/:slot", s.disconnect)

	s.app.Post("/edges", s.createEdge)
}
