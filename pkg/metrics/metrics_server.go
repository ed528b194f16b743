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
package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/numastats/pkg/shared/logging"
	sharedtls "github.com/numaproj/numastats/pkg/shared/tls"
)

const (
	DefaultPort = 9090
	// healthCheckTimeout bounds a single readiness probe
	healthCheckTimeout = 5 * time.Second
)

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve liveness and readiness endpoints
type metricsServer struct {
	port         int
	pprofEnabled bool
	tlsEnabled   bool
	// health checkers consulted by /readyz
	healthCheckers []HealthChecker
}

type Option func(*metricsServer)

// WithPort sets the listening port
func WithPort(port int) Option {
	return func(m *metricsServer) {
		m.port = port
	}
}

// WithPprof exposes the pprof endpoints under /debug/pprof/
func WithPprof(enabled bool) Option {
	return func(m *metricsServer) {
		m.pprofEnabled = enabled
	}
}

// WithTLS serves HTTPS with a self-signed certificate
func WithTLS(enabled bool) Option {
	return func(m *metricsServer) {
		m.tlsEnabled = enabled
	}
}

// WithHealthChecker appends a health checker to the readiness probe
func WithHealthChecker(hc HealthChecker) Option {
	return func(m *metricsServer) {
		if hc != nil {
			m.healthCheckers = append(m.healthCheckers, hc)
		}
	}
}

// NewMetricsServer returns a Prometheus metrics server instance.
func NewMetricsServer(opts ...Option) *metricsServer {
	m := &metricsServer{port: DefaultPort}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Handler returns the routes served by the metrics server.
func (ms *metricsServer) Handler(ctx context.Context) http.Handler {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		cctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		for _, hc := range ms.healthCheckers {
			if err := hc.IsHealthy(cctx); err != nil {
				log.Errorw("Readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if ms.pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}
	return mux
}

// Start starts the metrics server in the background. It returns a shutdown
// function, and an error if the server could not be set up.
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", ms.port),
		Handler:           ms.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ms.tlsEnabled {
		log.Info("Generating self-signed certificate")
		cer, err := sharedtls.GenerateX509KeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate cert: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cer}, MinVersion: tls.VersionTLS12}
	}

	go func() {
		var err error
		if ms.tlsEnabled {
			log.Infow("Starting metrics HTTPS server", zap.Int("port", ms.port))
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			log.Infow("Starting metrics HTTP server", zap.Int("port", ms.port))
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped unexpectedly", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return httpServer.Shutdown, nil
}
