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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"

	v1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/metrics"
	"github.com/numaproj/numastats/pkg/rolling"
	"github.com/numaproj/numastats/pkg/shared/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	sync.Mutex
	stats rolling.AggregatedStatistics
	calls int
}

func (f *fakeSource) GetRolling() rolling.AggregatedStatistics {
	f.Lock()
	defer f.Unlock()
	f.calls++
	return f.stats
}

func (f *fakeSource) Size() int {
	return 3
}

func (f *fakeSource) set(s rolling.AggregatedStatistics) {
	f.Lock()
	defer f.Unlock()
	f.stats = s
}

type fakeSink struct {
	sync.Mutex
	published []v1.Snapshot
	closed    bool
}

func (f *fakeSink) Name() string {
	return "fake"
}

func (f *fakeSink) Publish(_ context.Context, s v1.Snapshot) error {
	f.Lock()
	defer f.Unlock()
	f.published = append(f.published, s)
	return nil
}

func (f *fakeSink) Close() error {
	f.Lock()
	defer f.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) count() int {
	f.Lock()
	defer f.Unlock()
	return len(f.published)
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), zap.NewNop().Sugar())
}

func TestNewRefresher_Seeds(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.UnixMilli(5000))
	src := &fakeSource{stats: rolling.NewAggregatedStatistics(2, 10, 4, 6)}
	r := NewRefresher(testContext(), src, WithClock(fc))

	assert.Equal(t, v1.Snapshot{
		Statistics:  v1.Statistics{Count: 2, Sum: 10, Avg: 5, Max: 6, Min: 4},
		RefreshedAt: 5000,
	}, r.Latest())
	assert.Len(t, r.History(), 1)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, DefaultInterval, r.Interval())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RollingCount))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.RollingBuckets))
}

func TestRefresher_Start(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.UnixMilli(0))
	src := &fakeSource{}
	sink := &fakeSink{}
	r := NewRefresher(testContext(), src, WithClock(fc), WithInterval(time.Second), WithHistorySize(2), WithSinks(sink))
	assert.Equal(t, rolling.Empty.Size, r.Latest().Count)

	ctx, cancel := context.WithCancel(testContext())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, fc.HasWaiters, 5*time.Second, 5*time.Millisecond)
	src.set(rolling.NewAggregatedStatistics(1, 7, 7, 7))
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return sink.count() == 1 }, 5*time.Second, 5*time.Millisecond)

	latest := r.Latest()
	assert.Equal(t, int64(1), latest.Count)
	assert.Equal(t, 7.0, latest.Avg)
	assert.Equal(t, int64(1000), latest.RefreshedAt)

	src.set(rolling.NewAggregatedStatistics(2, 10, 3, 7))
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return sink.count() == 2 }, 5*time.Second, 5*time.Millisecond)

	// the seeded snapshot has been pushed out of the history
	history := r.History()
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Count)
	assert.Equal(t, int64(2), history[1].Count)

	cancel()
	assert.NoError(t, <-done)
	assert.True(t, sink.closed)
}

func TestRefresher_SetInterval(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.UnixMilli(0))
	sink := &fakeSink{}
	r := NewRefresher(testContext(), &fakeSource{}, WithClock(fc), WithInterval(time.Second), WithSinks(sink))

	r.SetInterval(0)
	assert.Equal(t, time.Second, r.Interval())
	r.SetInterval(time.Second)
	assert.Empty(t, r.intervalChanged)

	ctx, cancel := context.WithCancel(testContext())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	r.SetInterval(10 * time.Second)
	assert.Equal(t, 10*time.Second, r.Interval())
	require.Eventually(t, func() bool { return len(r.intervalChanged) == 0 && fc.HasWaiters() }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		fc.Step(10 * time.Second)
		return sink.count() > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRefresher_IsHealthy(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.UnixMilli(0))
	r := NewRefresher(testContext(), &fakeSource{}, WithClock(fc), WithInterval(100*time.Millisecond))
	assert.NoError(t, r.IsHealthy(context.Background()))

	fc.Step(time.Second)
	assert.NoError(t, r.IsHealthy(context.Background()))

	fc.Step(time.Millisecond)
	assert.Error(t, r.IsHealthy(context.Background()))

	r.refresh(context.Background())
	assert.NoError(t, r.IsHealthy(context.Background()))
}
