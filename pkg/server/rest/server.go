// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/server/middleware"
)

// Server represents the admin API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    *Handler
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	// Addr is the listen address (default: "127.0.0.1:8080")
	Addr string

	// Container names the vault's container in responses and logs
	Container string

	EnableLogging         bool
	EnableRequestID       bool
	EnableSecurityHeaders bool

	// EnableRateLimit enables rate limiting middleware
	EnableRateLimit bool

	// RateLimitConfig is the rate limiting configuration
	RateLimitConfig *middleware.RateLimitConfig

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Mode sets the Gin mode: "debug", "release", or "test" (default: "release")
	Mode string

	Logger adapters.Logger
}

// DefaultServerConfig returns a ServerConfig bound to loopback
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:                  "127.0.0.1:8080",
		EnableLogging:         true,
		EnableRequestID:       true,
		EnableSecurityHeaders: true,
		RateLimitConfig:       middleware.DefaultRateLimitConfig(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Minute,
		IdleTimeout:           120 * time.Second,
		Mode:                  gin.ReleaseMode,
		Logger:                adapters.NewDefaultLogger(),
	}
}

// NewServer creates a new admin API server for vault
func NewServer(vault Vault, config *ServerConfig) (*Server, error) {
	if vault == nil {
		return nil, ErrVaultNotSet
	}
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = adapters.NewDefaultLogger()
	}
	if config.Addr == "" {
		config.Addr = DefaultServerConfig().Addr
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware order: request ID → rate limit → security headers → logging
	if config.EnableRequestID {
		router.Use(middleware.RequestIDMiddleware())
	}
	if config.EnableRateLimit {
		router.Use(middleware.RateLimitMiddleware(config.RateLimitConfig, config.Logger))
	}
	if config.EnableSecurityHeaders {
		router.Use(middleware.SecurityHeadersMiddleware())
	}
	if config.EnableLogging {
		router.Use(middleware.LoggingMiddleware(config.Logger))
	}

	handler := NewHandler(vault, config.Container, config.Logger)
	SetupRoutes(router, handler)

	// WriteTimeout bounds the handler too, so it must cover a full restore.
	httpServer := &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handler:    handler,
		config:     config,
	}, nil
}

// Start listens on the configured address and serves until Shutdown. It
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.config.Logger.Info(context.Background(), "Starting admin API server",
		adapters.Field{Key: "address", Value: ln.Addr().String()})

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Logger.Info(ctx, "Shutting down admin API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router (useful for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
