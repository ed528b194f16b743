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
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient datatype to hold redis client attributes.
type RedisClient struct {
	Client redis.UniversalClient
}

// NewRedisClient returns a new Redis Client. A single address connects to a
// standalone server, several to a cluster, a master name to sentinels.
func NewRedisClient(options *redis.UniversalOptions) *RedisClient {
	client := new(RedisClient)
	client.Client = redis.NewUniversalClient(options)
	return client
}

// Ping checks the server is reachable.
func (cl *RedisClient) Ping(ctx context.Context) error {
	return cl.Client.Ping(ctx).Err()
}

// SetAndPublish stores value under key and, if channel is not empty,
// publishes it. With pipelining both commands run in one transaction.
func (cl *RedisClient) SetAndPublish(ctx context.Context, key, channel string, value []byte, ttl time.Duration, pipelining bool) error {
	if pipelining {
		_, err := cl.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			if channel != "" {
				pipe.Publish(ctx, channel, value)
			}
			return nil
		})
		return err
	}
	if err := cl.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return err
	}
	if channel != "" {
		return cl.Client.Publish(ctx, channel, value).Err()
	}
	return nil
}

// Get returns the value stored under key.
func (cl *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	return cl.Client.Get(ctx, key).Bytes()
}

func (cl *RedisClient) Close() error {
	return cl.Client.Close()
}

// NotFoundError reports whether err is redis' "key does not exist" reply.
func NotFoundError(err error) bool {
	return errors.Is(err, redis.Nil)
}
