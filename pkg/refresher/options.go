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
package refresher

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/numaproj/numastats/pkg/sinks"
)

const (
	DefaultInterval    = 100 * time.Millisecond
	DefaultHistorySize = 60
)

type options struct {
	// interval between two refreshes
	interval time.Duration
	// historySize is the number of snapshots kept for the history endpoint
	historySize int
	sinks       []sinks.Sink
	clock       clock.WithTicker
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		interval:    DefaultInterval,
		historySize: DefaultHistorySize,
		clock:       clock.RealClock{},
	}
}

// WithInterval sets the refresh interval, ignored when not positive
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithHistorySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// WithSinks sets the sinks every snapshot is published to
func WithSinks(s ...sinks.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s...)
	}
}

// WithClock sets the clock driving the ticker and stamping snapshots
func WithClock(c clock.WithTicker) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
