// Package server exposes the stored video metadata over a read-only HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/royen99/clip-manager/internal/moderation"
	"github.com/royen99/clip-manager/internal/store"
)

// Store is the read side of the video store.
type Store interface {
	Get(ctx context.Context, id string) (*store.Video, error)
	List(ctx context.Context, opts store.ListOptions) ([]*store.Video, error)
	Workflow(ctx context.Context, id string) ([]byte, error)
}

const maxPageSize = 200

// Server serves the HTTP API.
type Server struct {
	logger zerolog.Logger
	store  Store
	engine *gin.Engine
}

// New wires the routes.
func New(logger zerolog.Logger, st Store) *Server {
	s := &Server{
		logger: logger.With().Str("component", "server").Logger(),
		store:  st,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", s.health)
	api := s.engine.Group("/api")
	api.GET("/videos", s.listVideos)
	api.GET("/videos/:id", s.getVideo)
	api.GET("/videos/:id/workflow", s.downloadWorkflow)
	api.GET("/videos/:id/thumbnail", s.thumbnail)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listVideos(c *gin.Context) {
	opts := store.ListOptions{Tag: c.Query("tag")}

	var err error
	if opts.Limit, err = intQuery(c, "limit", 50); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.Limit <= 0 || opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	if opts.Offset, err = intQuery(c, "offset", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if raw := c.Query("max_rating"); raw != "" {
		r, err := moderation.ParseRating(raw)
		if err != nil || !r.Ordinal() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid max_rating %q", raw)})
			return
		}
		opts.MaxRating = &r
	}

	videos, err := s.store.List(c.Request.Context(), opts)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if videos == nil {
		videos = []*store.Video{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "count": len(videos)})
}

func (s *Server) getVideo(c *gin.Context) {
	v, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// downloadWorkflow returns the embedded graph exactly as stored.
func (s *Server) downloadWorkflow(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	v, err := s.store.Get(ctx, id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	raw, err := s.store.Workflow(ctx, id)
	if err != nil {
		s.storeError(c, err)
		return
	}

	name := strings.TrimSuffix(v.Filename, filepath.Ext(v.Filename)) + "_workflow.json"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) thumbnail(c *gin.Context) {
	v, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	if v.Thumbnail == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no thumbnail"})
		return
	}
	c.File(v.Thumbnail)
}

func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNoWorkflow):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.internalError(c, err)
	}
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
