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
// Package server runs the numastats service: the rolling window, its
// refresher and sinks, the REST API and the metrics server.
package server

import (
	"context"
	"fmt"
	"runtime"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numastats"
	"github.com/numaproj/numastats/pkg/config"
	"github.com/numaproj/numastats/pkg/metrics"
	"github.com/numaproj/numastats/pkg/refresher"
	"github.com/numaproj/numastats/pkg/rolling"
	redisclient "github.com/numaproj/numastats/pkg/shared/clients/redis"
	"github.com/numaproj/numastats/pkg/shared/logging"
	"github.com/numaproj/numastats/pkg/sinks"
	logsink "github.com/numaproj/numastats/pkg/sinks/logger"
	redissink "github.com/numaproj/numastats/pkg/sinks/redis"
	apiserver "github.com/numaproj/numastats/server/cmd/server"
)

const (
	component        = "server"
	redisPingTimeout = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

type daemonServer struct {
	config    *config.GlobalConfig
	stats     *rolling.RollingStatistics
	refresher *refresher.Refresher
	log       *zap.SugaredLogger
}

// NewDaemonServer builds the rolling window, the sinks and the refresher from
// the configuration. Nothing runs until Run is called.
func NewDaemonServer(ctx context.Context, cfg *config.GlobalConfig) (*daemonServer, error) {
	log := logging.FromContext(ctx)
	s := cfg.Statistics
	stats, err := rolling.New(s.WindowMillis, s.NumBuckets,
		rolling.WithMaxCells(s.MaxCells),
		rolling.WithLogger(log.Named("RollingStatistics")))
	if err != nil {
		return nil, fmt.Errorf("failed to create rolling statistics: %w", err)
	}
	sinkList, err := buildSinks(ctx, cfg.Sinks)
	if err != nil {
		return nil, err
	}
	r := refresher.NewRefresher(ctx, stats,
		refresher.WithInterval(s.RefreshInterval),
		refresher.WithHistorySize(s.HistorySize),
		refresher.WithSinks(sinkList...))
	for _, w := range cfg.Warnings() {
		log.Warnw("Configuration warning", zap.Error(w))
	}
	return &daemonServer{
		config:    cfg,
		stats:     stats,
		refresher: r,
		log:       log,
	}, nil
}

func buildSinks(ctx context.Context, cfg config.SinksConfig) ([]sinks.Sink, error) {
	log := logging.FromContext(ctx)
	var result []sinks.Sink
	if cfg.Log.Enabled {
		result = append(result, logsink.NewToLog(logsink.WithLogger(log)))
	}
	if r := cfg.Redis; r.Enabled {
		client := redisclient.NewRedisClient(&goredis.UniversalOptions{
			Addrs:      r.Addrs,
			MasterName: r.MasterName,
			Username:   r.Username,
			Password:   r.Password,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			_ = client.Close()
			sinks.CloseAll(log, result)
			return nil, fmt.Errorf("failed to connect to redis %v: %w", r.Addrs, err)
		}
		result = append(result, redissink.NewRedisSink(ctx, client,
			redisclient.WithKey(r.Key),
			redisclient.WithChannel(r.Channel),
			redisclient.WithTTL(r.TTL)))
	}
	for _, s := range result {
		log.Infow("Publishing statistics", zap.String("sink", s.Name()))
	}
	return result, nil
}

// Statistics returns the rolling window the server aggregates into.
func (ds *daemonServer) Statistics() *rolling.RollingStatistics {
	return ds.stats
}

// Refresher returns the snapshot cache served by the API.
func (ds *daemonServer) Refresher() *refresher.Refresher {
	return ds.refresher
}

// ApplyConfig applies the settings that can change while running. The window
// layout is fixed for the lifetime of the server.
func (ds *daemonServer) ApplyConfig(cfg *config.GlobalConfig) {
	if cfg.Statistics.WindowMillis != ds.config.Statistics.WindowMillis || cfg.Statistics.NumBuckets != ds.config.Statistics.NumBuckets {
		ds.log.Warn("Window layout changes take effect after a restart")
	}
	for _, w := range cfg.Warnings() {
		ds.log.Warnw("Configuration warning", zap.Error(w))
	}
	ds.refresher.SetInterval(cfg.Statistics.RefreshInterval)
}

// Run serves until the context is cancelled or one of the components fails.
func (ds *daemonServer) Run(ctx context.Context) error {
	v := numastats.GetVersion()
	metrics.BuildInfo.WithLabelValues(component, v.Version, v.Platform).Set(1)

	g, gCtx := errgroup.WithContext(ctx)
	ms := metrics.NewMetricsServer(
		metrics.WithPort(ds.config.Metrics.Port),
		metrics.WithPprof(ds.config.Metrics.Pprof),
		metrics.WithTLS(ds.config.Metrics.TLS),
		metrics.WithHealthChecker(ds.refresher))
	shutdownMetrics, err := ms.Start(gCtx)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	g.Go(func() error {
		<-gCtx.Done()
		sCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownMetrics(sCtx)
	})
	g.Go(func() error {
		return ds.refresher.Start(gCtx)
	})
	api := apiserver.NewServer(apiserver.ServerOptions{
		Port:               ds.config.Server.Port,
		TLS:                ds.config.Server.TLS,
		CorsAllowedOrigins: ds.config.Server.CORSAllowedOrigins,
		ReadOnly:           ds.config.Server.ReadOnly,
		IngestRateLimit:    ds.config.Server.IngestRateLimit,
		IngestBurst:        ds.config.Server.IngestBurst,
	}, ds.stats, ds.refresher)
	g.Go(func() error {
		return api.Start(gCtx)
	})
	ds.log.Infow("Numastats server started",
		zap.Int64("windowMillis", ds.stats.WindowMillis()),
		zap.Int("numBuckets", ds.stats.NumBuckets()),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))
	return g.Wait()
}
