// Package api exposes run history and evaluation reports over HTTP. The
// server is read-only: evaluations run through the CLI, the API serves their
// results.
package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stellarlinkco/benchkit/internal/artifact"
	"github.com/stellarlinkco/benchkit/internal/config"
	"github.com/stellarlinkco/benchkit/internal/store"
)

type Server struct {
	router *gin.Engine
	store  store.Store
	layout artifact.Layout
	config *config.Config
}

func NewServer(cfg *config.Config, st store.Store, layout artifact.Layout) (*Server, error) {
	r := gin.New()
	s := &Server{
		router: r,
		store:  st,
		layout: layout,
		config: cfg,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}
