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
package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	v1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	redisclient "github.com/numaproj/numastats/pkg/shared/clients/redis"
	"github.com/numaproj/numastats/pkg/shared/logging"
	"github.com/numaproj/numastats/pkg/sinks"
)

// RedisSink stores the latest snapshot as JSON under a key, and optionally
// publishes each snapshot to a channel.
type RedisSink struct {
	name   string
	client *redisclient.RedisClient
	opts   *redisclient.Options
	logger *zap.SugaredLogger
}

var _ sinks.Sink = (*RedisSink)(nil)

// NewRedisSink returns RedisSink type.
func NewRedisSink(ctx context.Context, client *redisclient.RedisClient, opts ...redisclient.Option) *RedisSink {
	o := redisclient.DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(o)
		}
	}
	rs := &RedisSink{
		name:   "redis",
		client: client,
		opts:   o,
		logger: logging.FromContext(ctx).Named("RedisSink"),
	}
	rs.logger.Infow("Redis sink configured", zap.String("key", o.Key), zap.String("channel", o.Channel), zap.Duration("ttl", o.TTL))
	return rs
}

// Name returns the name.
func (rs *RedisSink) Name() string {
	return rs.name
}

// Publish writes the snapshot to redis.
func (rs *RedisSink) Publish(ctx context.Context, s v1.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := rs.client.SetAndPublish(ctx, rs.opts.Key, rs.opts.Channel, payload, rs.opts.TTL, rs.opts.Pipelining); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}
	redisSinkWriteCount.Inc()
	return nil
}

func (rs *RedisSink) Close() error {
	return rs.client.Close()
}
