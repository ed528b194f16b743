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
package rolling

import (
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/numaproj/numastats/pkg/striped"
)

type options struct {
	// timeSource provides the current time in milliseconds
	timeSource TimeSource
	// accumulatorOpts are passed to every accumulator of every bucket
	accumulatorOpts []striped.Option
	log             *zap.SugaredLogger
}

func defaultOptions() *options {
	return &options{
		timeSource: SystemTime,
		log:        zap.NewNop().Sugar(),
	}
}

type Option func(*options)

// WithTimeSource sets the time source used to place values into buckets.
func WithTimeSource(ts TimeSource) Option {
	return func(o *options) {
		if ts != nil {
			o.timeSource = ts
		}
	}
}

// WithClock reads the time off the given clock.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) {
		if c != nil {
			o.timeSource = FromClock(c)
		}
	}
}

// WithMaxCells caps the number of cells of each bucket accumulator.
func WithMaxCells(n int) Option {
	return func(o *options) {
		o.accumulatorOpts = append(o.accumulatorOpts, striped.WithMaxCells(n))
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
