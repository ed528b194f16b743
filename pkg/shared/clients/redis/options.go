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
	"time"
)

const DefaultKey = "numastats:statistics"

// Options for writing snapshots to redis
type Options struct {
	// Key holds the latest snapshot
	Key string
	// Channel, when set, receives every snapshot as a pub/sub message
	Channel string
	// TTL of the key, zero keeps it forever
	TTL time.Duration
	// Pipelining sends the SET and the PUBLISH in a single MULTI/EXEC round trip
	Pipelining bool
}

// DefaultOptions returns the options used when none are applied.
func DefaultOptions() *Options {
	return &Options{
		Key:        DefaultKey,
		Pipelining: true,
	}
}

// Option to apply different options
type Option interface {
	Apply(*Options)
}

// pipelining option
type pipelining bool

func (p pipelining) Apply(opts *Options) {
	opts.Pipelining = bool(p)
}

// WithoutPipelining turns off redis pipelining
func WithoutPipelining() Option {
	return pipelining(false)
}

// key option
type key string

func (k key) Apply(o *Options) {
	if k != "" {
		o.Key = string(k)
	}
}

// WithKey sets the key the snapshot is stored under
func WithKey(k string) Option {
	return key(k)
}

// channel option
type channel string

func (c channel) Apply(o *Options) {
	o.Channel = string(c)
}

// WithChannel publishes every snapshot to the channel
func WithChannel(c string) Option {
	return channel(c)
}

// ttl option
type ttl time.Duration

func (t ttl) Apply(o *Options) {
	o.TTL = time.Duration(t)
}

// WithTTL expires the key after the duration
func WithTTL(t time.Duration) Option {
	return ttl(t)
}
