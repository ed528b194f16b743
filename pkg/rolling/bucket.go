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
	"github.com/numaproj/numastats/pkg/striped"
)

// Bucket holds the accumulators of one time slice. The slice starts at
// windowStart and lasts one bucket duration. Writers falling into the slice
// update the accumulators without coordinating with each other.
type Bucket struct {
	windowStart int64
	max         *striped.Max
	min         *striped.Min
	sum         *striped.Sum
	count       *striped.Sum
}

func newBucket(windowStart int64, opts ...striped.Option) *Bucket {
	return &Bucket{
		windowStart: windowStart,
		max:         striped.NewMax(opts...),
		min:         striped.NewMin(opts...),
		sum:         striped.NewSum(opts...),
		count:       striped.NewSum(opts...),
	}
}

func (b *Bucket) add(value float64) {
	b.max.Update(value)
	b.min.Update(value)
	b.sum.Add(value)
	b.count.Increment()
}

// WindowStart returns the epoch millisecond the bucket starts at.
func (b *Bucket) WindowStart() int64 {
	return b.windowStart
}

func (b *Bucket) Max() *striped.Max {
	return b.max
}

func (b *Bucket) Min() *striped.Min {
	return b.min
}

func (b *Bucket) Sum() *striped.Sum {
	return b.sum
}

func (b *Bucket) Count() *striped.Sum {
	return b.count
}

// BucketSummary is a point-in-time read of a bucket. Min and Max are zero for
// an empty bucket.
type BucketSummary struct {
	WindowStart int64
	Count       int64
	Sum         float64
	Min         float64
	Max         float64
}

// Summary reads the accumulators of the bucket.
func (b *Bucket) Summary() BucketSummary {
	s := BucketSummary{
		WindowStart: b.windowStart,
		Count:       b.count.Int64Value(),
	}
	if s.Count < 1 {
		return s
	}
	s.Sum = b.sum.Aggregate()
	s.Min = b.min.Aggregate()
	s.Max = b.max.Aggregate()
	return s
}
