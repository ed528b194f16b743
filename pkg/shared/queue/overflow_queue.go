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
package queue

import "sync"

// OverflowQueue is a thread safe ring with a fixed capacity. Appending to a
// full queue overwrites the oldest element.
type OverflowQueue[T any] struct {
	elements []T
	// start is the slot of the oldest element
	start  int
	length int
	lock   sync.RWMutex
}

func New[T any](size int) *OverflowQueue[T] {
	if size < 1 {
		size = 1
	}
	return &OverflowQueue[T]{
		elements: make([]T, size),
	}
}

// Append adds an element to the queue
func (q *OverflowQueue[T]) Append(value T) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.length < len(q.elements) {
		q.elements[(q.start+q.length)%len(q.elements)] = value
		q.length++
		return
	}
	q.elements[q.start] = value
	q.start = (q.start + 1) % len(q.elements)
}

// Items returns a copy of the elements in the queue, oldest first.
func (q *OverflowQueue[T]) Items() []T {
	q.lock.RLock()
	defer q.lock.RUnlock()
	r := make([]T, q.length)
	for i := 0; i < q.length; i++ {
		r[i] = q.elements[(q.start+i)%len(q.elements)]
	}
	return r
}

// ReversedItems returns a copy of the elements in the queue, newest first.
func (q *OverflowQueue[T]) ReversedItems() []T {
	items := q.Items()
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Last returns the newest element, false if the queue is empty.
func (q *OverflowQueue[T]) Last() (T, bool) {
	q.lock.RLock()
	defer q.lock.RUnlock()
	var zero T
	if q.length == 0 {
		return zero, false
	}
	return q.elements[(q.start+q.length-1)%len(q.elements)], true
}

// Length returns the current length of the queue
func (q *OverflowQueue[T]) Length() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.length
}

// Capacity returns the maximum number of elements kept.
func (q *OverflowQueue[T]) Capacity() int {
	return len(q.elements)
}
