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
// Package refresher periodically snapshots the rolling statistics into a
// single-slot cache, so readers get the latest aggregate in constant time.
package refresher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	v1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/metrics"
	"github.com/numaproj/numastats/pkg/rolling"
	"github.com/numaproj/numastats/pkg/shared/logging"
	"github.com/numaproj/numastats/pkg/shared/queue"
	"github.com/numaproj/numastats/pkg/sinks"
)

// staleFactor is how many missed intervals make the refresher unhealthy
const staleFactor = 10

// StatisticsSource is what the refresher snapshots.
type StatisticsSource interface {
	GetRolling() rolling.AggregatedStatistics
	// Size returns the number of buckets currently held
	Size() int
}

// Refresher keeps the latest snapshot of a StatisticsSource.
type Refresher struct {
	source   StatisticsSource
	interval *atomic.Duration
	// intervalChanged wakes the loop up to reset its ticker
	intervalChanged chan struct{}
	latest          *atomic.Pointer[v1.Snapshot]
	history         *queue.OverflowQueue[v1.Snapshot]
	sinks           []sinks.Sink
	clock           clock.WithTicker
	log             *zap.SugaredLogger
}

var _ metrics.HealthChecker = (*Refresher)(nil)

// NewRefresher returns a Refresher whose cache is already seeded with one
// snapshot, so Latest never waits for the first tick.
func NewRefresher(ctx context.Context, source StatisticsSource, opts ...Option) *Refresher {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	r := &Refresher{
		source:          source,
		interval:        atomic.NewDuration(o.interval),
		intervalChanged: make(chan struct{}, 1),
		latest:          atomic.NewPointer[v1.Snapshot](nil),
		history:         queue.New[v1.Snapshot](o.historySize),
		sinks:           o.sinks,
		clock:           o.clock,
		log:             logging.FromContext(ctx).Named("Refresher"),
	}
	r.store(r.snapshot())
	return r
}

// Start refreshes the cache every interval until the context is done. It
// closes the sinks on the way out.
func (r *Refresher) Start(ctx context.Context) error {
	r.log.Infow("Starting statistics refresher", zap.Duration("interval", r.interval.Load()))
	defer sinks.CloseAll(r.log, r.sinks)

	ticker := r.clock.NewTicker(r.interval.Load())
	defer func() { ticker.Stop() }()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Statistics refresher stopped")
			return nil
		case <-r.intervalChanged:
			ticker.Stop()
			ticker = r.clock.NewTicker(r.interval.Load())
			r.log.Infow("Refresh interval changed", zap.Duration("interval", r.interval.Load()))
		case <-ticker.C():
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	start := time.Now()
	s := r.snapshot()
	r.store(s)
	sinks.PublishAll(ctx, r.log, r.sinks, s)
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
}

func (r *Refresher) snapshot() v1.Snapshot {
	agg := r.source.GetRolling()
	metrics.RollingBuckets.Set(float64(r.source.Size()))
	return v1.Snapshot{
		Statistics: v1.Statistics{
			Count: agg.Size,
			Sum:   agg.Sum,
			Avg:   agg.Avg,
			Max:   agg.Max,
			Min:   agg.Min,
		},
		RefreshedAt: r.clock.Now().UnixMilli(),
	}
}

func (r *Refresher) store(s v1.Snapshot) {
	r.latest.Store(&s)
	r.history.Append(s)
	metrics.RollingCount.Set(float64(s.Count))
	metrics.RollingSum.Set(s.Sum)
	metrics.RollingAvg.Set(s.Avg)
	metrics.RollingMin.Set(s.Min)
	metrics.RollingMax.Set(s.Max)
}

// Latest returns the most recent snapshot.
func (r *Refresher) Latest() v1.Snapshot {
	return *r.latest.Load()
}

// History returns the retained snapshots, oldest first.
func (r *Refresher) History() []v1.Snapshot {
	return r.history.Items()
}

// Interval returns the current refresh interval.
func (r *Refresher) Interval() time.Duration {
	return r.interval.Load()
}

// SetInterval changes the refresh interval of a running refresher.
func (r *Refresher) SetInterval(d time.Duration) {
	if d <= 0 || r.interval.Swap(d) == d {
		return
	}
	select {
	case r.intervalChanged <- struct{}{}:
	default:
	}
}

// IsHealthy fails when no snapshot was taken for staleFactor intervals.
func (r *Refresher) IsHealthy(_ context.Context) error {
	age := r.clock.Since(time.UnixMilli(r.Latest().RefreshedAt))
	if limit := staleFactor * r.interval.Load(); age > limit {
		return fmt.Errorf("statistics were last refreshed %s ago, more than %s", age, limit)
	}
	return nil
}
