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
// Package rolling keeps count, sum, min, max and average of the values seen
// over the last window of time.
//
// The window is split into a fixed number of buckets held in a ring. Writers
// update the newest bucket with lock-free accumulators. When the newest bucket
// has aged out, a single goroutine rotates the ring, filling in empty buckets
// for any idle time, while every other goroutine keeps writing to the bucket
// that was newest when it looked. Reads merge every bucket of the ring without
// stopping writers, so a result taken under contention may lag the writes that
// raced with it.
package rolling

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numastats/pkg/striped"
)

var (
	ErrInvalidWindow      = errors.New("window duration must be positive")
	ErrInvalidBucketCount = errors.New("number of buckets must be positive")
	ErrUnevenBuckets      = errors.New("window duration must be a multiple of the number of buckets")
)

const (
	// firstBucketAttempts bounds how often a writer that lost the race to
	// create the very first bucket sleeps between attempts, it only yields after.
	firstBucketAttempts = 10
	firstBucketBackoff  = 5 * time.Millisecond
)

// RollingStatistics aggregates values over a sliding window of time.
type RollingStatistics struct {
	windowMillis int64
	numBuckets   int
	bucketMillis int64

	buckets         *bucketCircularArray
	timeSource      TimeSource
	accumulatorOpts []striped.Option
	// rotation serializes bucket creation. It is never held while values are added.
	rotation sync.Mutex
	log      *zap.SugaredLogger
}

// New returns RollingStatistics over windowMillis milliseconds, split into
// numBuckets buckets of equal length.
func New(windowMillis int64, numBuckets int, opts ...Option) (*RollingStatistics, error) {
	if windowMillis <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWindow, windowMillis)
	}
	if numBuckets <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBucketCount, numBuckets)
	}
	if windowMillis%int64(numBuckets) != 0 {
		return nil, fmt.Errorf("%w, window %dms, buckets %d", ErrUnevenBuckets, windowMillis, numBuckets)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &RollingStatistics{
		windowMillis:    windowMillis,
		numBuckets:      numBuckets,
		bucketMillis:    windowMillis / int64(numBuckets),
		buckets:         newBucketCircularArray(numBuckets),
		timeSource:      o.timeSource,
		accumulatorOpts: o.accumulatorOpts,
		log:             o.log,
	}, nil
}

// AddValue adds the value to the current bucket.
func (r *RollingStatistics) AddValue(value float64) {
	r.currentBucket().add(value)
}

// AddValueAt adds a value observed at timestamp, in epoch milliseconds. It
// returns false, leaving the window untouched, if the timestamp is at or
// before the start of the window.
func (r *RollingStatistics) AddValueAt(value float64, timestamp int64) bool {
	if timestamp <= r.timeSource.CurrentTimeMillis()-r.windowMillis {
		return false
	}
	r.AddValue(value)
	return true
}

// GetRolling merges every non-empty bucket of the window. It rotates the ring
// first, so buckets that expired while no value was added are left out.
func (r *RollingStatistics) GetRolling() AggregatedStatistics {
	r.currentBucket()
	var (
		size  int64
		total float64
		hi    = math.Inf(-1)
		lo    = math.Inf(1)
	)
	for _, b := range r.buckets.items() {
		count := b.count.Int64Value()
		if count < 1 {
			continue
		}
		size += count
		total += b.sum.Aggregate()
		hi = math.Max(hi, b.max.Aggregate())
		lo = math.Min(lo, b.min.Aggregate())
	}
	if size == 0 {
		return Empty
	}
	return NewAggregatedStatistics(size, total, lo, hi)
}

// Reset drops every bucket.
func (r *RollingStatistics) Reset() {
	r.buckets.clear()
}

// currentBucket returns the bucket values observed now belong to, rotating
// the ring when the newest bucket has aged out.
func (r *RollingStatistics) currentBucket() *Bucket {
	now := r.timeSource.CurrentTimeMillis()
	for attempt := 0; ; attempt++ {
		last := r.buckets.peekLast()
		if last != nil && now < last.windowStart+r.bucketMillis {
			return last
		}
		if r.rotation.TryLock() {
			b := r.rotateLocked(now)
			r.rotation.Unlock()
			return b
		}
		// Someone else is rotating. Writing to the previous bucket is fine,
		// only the placement of this value is off by at most one bucket.
		if last = r.buckets.peekLast(); last != nil {
			return last
		}
		if attempt < firstBucketAttempts {
			time.Sleep(firstBucketBackoff)
		} else {
			runtime.Gosched()
		}
		now = r.timeSource.CurrentTimeMillis()
	}
}

// rotateLocked must be called with the rotation lock held. It appends buckets
// until one covers now, or resets the ring when the whole window went by
// without any bucket being created.
func (r *RollingStatistics) rotateLocked(now int64) *Bucket {
	for {
		last := r.buckets.peekLast()
		if last == nil {
			first := newBucket(now, r.accumulatorOpts...)
			r.buckets.appendLast(first)
			return first
		}
		var appended *Bucket
		restart := false
		for i := 0; i < r.numBuckets; i++ {
			if last = r.buckets.peekLast(); last == nil {
				// cleared by Reset
				restart = true
				break
			}
			end := last.windowStart + r.bucketMillis
			if now < end {
				return last
			}
			if now-end > r.windowMillis {
				r.log.Debugw("Window expired, resetting", zap.Int64("lastBucketEnd", end), zap.Int64("now", now))
				r.buckets.clear()
				restart = true
				break
			}
			appended = newBucket(end, r.accumulatorOpts...)
			r.buckets.appendLast(appended)
		}
		if !restart {
			return appended
		}
	}
}

// WindowMillis returns the length of the window.
func (r *RollingStatistics) WindowMillis() int64 {
	return r.windowMillis
}

func (r *RollingStatistics) NumBuckets() int {
	return r.numBuckets
}

// BucketMillis returns the length of a single bucket.
func (r *RollingStatistics) BucketMillis() int64 {
	return r.bucketMillis
}

// Size returns the number of buckets in the ring. It does not rotate.
func (r *RollingStatistics) Size() int {
	return r.buckets.size()
}

// Buckets returns the buckets of the ring, oldest first. It does not rotate.
func (r *RollingStatistics) Buckets() []*Bucket {
	return r.buckets.items()
}

// LastBucket returns the newest bucket, nil when the ring is empty.
func (r *RollingStatistics) LastBucket() *Bucket {
	return r.buckets.peekLast()
}
