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
// Package sinks publishes refreshed statistics to external systems.
package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	v1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/metrics"
)

// DefaultPublishTimeout bounds a single Publish call.
const DefaultPublishTimeout = time.Second

// Sink receives every refreshed snapshot.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	Publish(ctx context.Context, snapshot v1.Snapshot) error
	Close() error
}

// PublishAll hands the snapshot to every sink in turn. A failing sink is
// logged and counted, it does not stop the others.
func PublishAll(ctx context.Context, log *zap.SugaredLogger, sinks []Sink, snapshot v1.Snapshot) {
	for _, s := range sinks {
		cctx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
		err := s.Publish(cctx, snapshot)
		cancel()
		if err != nil {
			metrics.SinkPublishErrors.WithLabelValues(s.Name()).Inc()
			log.Errorw("Failed to publish statistics", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// CloseAll closes every sink, logging failures.
func CloseAll(log *zap.SugaredLogger, sinks []Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Errorw("Failed to close sink", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
