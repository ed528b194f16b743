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
	"go.uber.org/atomic"
)

// listState is an immutable view of the ring. Every change to the ring builds
// a new listState and publishes it with a CAS, so a reader holding an older
// state keeps a consistent, if stale, view. The slots array is shared between
// generations and is only written at the tail of the current state, outside
// its live range. Callers that need a stable view copy it out with items.
type listState struct {
	data []atomic.Pointer[Bucket]
	head int
	tail int
	size int
}

func newListState(data []atomic.Pointer[Bucket], head, tail int) *listState {
	return &listState{
		data: data,
		head: head,
		tail: tail,
		size: (tail + len(data) - head) % len(data),
	}
}

// last returns the newest bucket, nil for an empty ring.
func (s *listState) last() *Bucket {
	if s.size == 0 {
		return nil
	}
	return s.data[s.convert(s.size-1)].Load()
}

// items copies the live buckets out, oldest first.
func (s *listState) items() []*Bucket {
	out := make([]*Bucket, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.data[s.convert(i)].Load())
	}
	return out
}

// convert maps a logical index, counted from head, to a slot.
func (s *listState) convert(index int) int {
	return (index + s.head) % len(s.data)
}

// bucketCircularArray is a fixed capacity FIFO of buckets. The oldest bucket
// is evicted when appending to a full ring.
//
// appendLast is not safe for concurrent callers: a losing CAS drops the
// bucket. RollingStatistics only appends while holding its rotation lock.
type bucketCircularArray struct {
	state      atomic.Pointer[listState]
	numBuckets int
}

func newBucketCircularArray(numBuckets int) *bucketCircularArray {
	a := &bucketCircularArray{numBuckets: numBuckets}
	// one spare slot so the append and the eviction land in one state change
	a.state.Store(newListState(make([]atomic.Pointer[Bucket], numBuckets+1), 0, 0))
	return a
}

func (a *bucketCircularArray) appendLast(b *Bucket) {
	current := a.state.Load()
	current.data[current.tail].Store(b)
	length := len(current.data)
	next := newListState(current.data, current.head, (current.tail+1)%length)
	if current.size == a.numBuckets {
		next = newListState(current.data, (current.head+1)%length, (current.tail+1)%length)
	}
	// no retry, the other writer wins and the next rotation realigns the ring
	a.state.CompareAndSwap(current, next)
}

// clear publishes a fresh empty state. Racing clears may each succeed, data
// appended between them is dropped.
func (a *bucketCircularArray) clear() {
	for {
		current := a.state.Load()
		next := newListState(make([]atomic.Pointer[Bucket], a.numBuckets+1), 0, 0)
		if a.state.CompareAndSwap(current, next) {
			return
		}
	}
}

func (a *bucketCircularArray) peekLast() *Bucket {
	return a.state.Load().last()
}

func (a *bucketCircularArray) items() []*Bucket {
	return a.state.Load().items()
}

func (a *bucketCircularArray) size() int {
	return a.state.Load().size
}
