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
package logger

import (
	"context"

	"go.uber.org/zap"

	v1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/shared/logging"
	"github.com/numaproj/numastats/pkg/sinks"
)

// ToLog writes every snapshot to the log.
type ToLog struct {
	name   string
	logger *zap.SugaredLogger
}

var _ sinks.Sink = (*ToLog)(nil)

type Option func(*ToLog)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) {
		t.logger = log
	}
}

// NewToLog returns ToLog type.
func NewToLog(opts ...Option) *ToLog {
	toLog := &ToLog{name: "log"}
	for _, o := range opts {
		o(toLog)
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.Named("LogSink")
	return toLog
}

// Name returns the name.
func (t *ToLog) Name() string {
	return t.name
}

// Publish writes to the log.
func (t *ToLog) Publish(_ context.Context, s v1.Snapshot) error {
	logSinkWriteCount.Inc()
	t.logger.Infow("Statistics",
		zap.Int64("count", s.Count),
		zap.Float64("sum", s.Sum),
		zap.Float64("avg", s.Avg),
		zap.Float64("min", s.Min),
		zap.Float64("max", s.Max),
		zap.Int64("refreshedAt", s.RefreshedAt))
	return nil
}

func (t *ToLog) Close() error {
	// syncing stdout fails on some platforms
	_ = t.logger.Sync()
	return nil
}
