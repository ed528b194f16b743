/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/numaproj/numastats"
	"github.com/numaproj/numastats/pkg/shared/logging"
	sharedtls "github.com/numaproj/numastats/pkg/shared/tls"
	v1 "github.com/numaproj/numastats/server/apis/v1"
	"github.com/numaproj/numastats/server/routes"
)

const shutdownTimeout = 5 * time.Second

type ServerOptions struct {
	Port               int
	TLS                bool
	CorsAllowedOrigins []string
	ReadOnly           bool
	// IngestRateLimit is in transactions per second, 0 disables it
	IngestRateLimit float64
	IngestBurst     int
}

type server struct {
	options ServerOptions
	stats   v1.StatisticsService
	cache   v1.SnapshotCache
}

func NewServer(opts ServerOptions, stats v1.StatisticsService, cache v1.SnapshotCache) *server {
	return &server{
		options: opts,
		stats:   stats,
		cache:   cache,
	}
}

// Handler builds the gin engine serving the API.
func (s *server) Handler(ctx context.Context) http.Handler {
	router := gin.New()
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/livez", "/healthz"}}))
	router.Use(gin.Recovery())
	if allowedOrigins := cleanOrigins(s.options.CorsAllowedOrigins); len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "HEAD"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", routes.RequestIDHeader},
			ExposeHeaders:    []string{routes.RequestIDHeader},
			AllowCredentials: true,
		}))
	}
	router.RedirectTrailingSlash = true
	var opts []v1.HandlerOption
	if s.options.ReadOnly {
		opts = append(opts, v1.WithReadOnlyMode())
	}
	opts = append(opts, v1.WithIngestLimit(s.options.IngestRateLimit, s.options.IngestBurst))
	routes.Routes(ctx, router, s.stats, s.cache, opts...)
	return router
}

// Start serves the API until the context is cancelled, then shuts the server
// down gracefully.
func (s *server) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.options.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.options.TLS {
		cert, err := sharedtls.GenerateX509KeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate cert: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.options.TLS {
			log.Infow("Starting server on "+httpServer.Addr, "version", numastats.GetVersion(), "readonly", s.options.ReadOnly)
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Infow("Starting server (TLS disabled) on "+httpServer.Addr, "version", numastats.GetVersion(), "readonly", s.options.ReadOnly)
			err = httpServer.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Failed to shutdown server gracefully", zap.Error(err))
		return err
	}
	<-errCh
	log.Info("Server shutdown")
	return nil
}

func cleanOrigins(origins []string) []string {
	allowedOrigins := make([]string, 0, len(origins))
	for _, o := range origins {
		s := strings.TrimSpace(o)
		s = strings.TrimRight(s, "/") // Remove trailing slash if any
		if len(s) > 0 {
			allowedOrigins = append(allowedOrigins, s)
		}
	}
	return allowedOrigins
}
