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

// Package striped provides lock-free float64 accumulators that spread
// contended updates across a lazily grown table of padded cells.
//
// An accumulator starts with a single base value. Updates CAS the base until
// a CAS fails, at which point the updating goroutine is routed to a cell chosen
// by its probe hash. The cell table doubles on repeated collisions, up to the
// configured maximum. Reading combines the base and every cell, so reads taken
// while writers are active may miss in-flight updates.
package striped

import (
	"fmt"
	"math"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

// combineFunc must be associative and commutative, with identity as its neutral element.
type combineFunc func(current, x float64) float64

// cell is a single padded slot of the table.
type cell struct {
	_     cpu.CacheLinePad
	value atomic.Float64
	_     cpu.CacheLinePad
}

func newCell(v float64) *cell {
	c := &cell{}
	c.value.Store(v)
	return c
}

// cas applies fn to the cell and reports whether the update landed.
func (c *cell) cas(fn combineFunc, x float64) bool {
	v := c.value.Load()
	n := fn(v, x)
	return n == v || c.value.CompareAndSwap(v, n)
}

// cellTable is published as a whole, its slots are filled in place while busy is held.
type cellTable struct {
	slots []atomic.Pointer[cell]
}

func newCellTable(size int) *cellTable {
	return &cellTable{slots: make([]atomic.Pointer[cell], size)}
}

// striped holds the state shared by Sum, Max and Min.
type striped struct {
	fn       combineFunc
	identity float64
	maxCells int

	base  atomic.Float64
	cells atomic.Pointer[cellTable]
	// busy guards table creation, growth and slot installation.
	busy atomic.Bool
}

func newStriped(fn combineFunc, identity float64, opts ...Option) *striped {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	s := &striped{
		fn:       fn,
		identity: identity,
		maxCells: o.maxCells,
	}
	s.base.Store(identity)
	return s
}

func (s *striped) casBase(x float64) bool {
	b := s.base.Load()
	n := s.fn(b, x)
	return n == b || s.base.CompareAndSwap(b, n)
}

func (s *striped) accumulate(x float64) {
	t := s.cells.Load()
	if t == nil && s.casBase(x) {
		return
	}
	p := acquireProbe()
	defer releaseProbe(p)
	uncontended := true
	if t != nil && len(t.slots) > 0 {
		c := t.slots[p.index(len(t.slots))].Load()
		if c != nil {
			if c.cas(s.fn, x) {
				return
			}
			uncontended = false
		}
	}
	s.retryUpdate(x, p, uncontended)
}

// retryUpdate handles initialization, resizing, creating new cells and contention.
// A failed CAS on a cell first rehashes the probe; a second collision on a full-size
// table rehashes again, otherwise the table is doubled.
func (s *striped) retryUpdate(x float64, p *probe, wasUncontended bool) {
	collide := false
	for {
		t := s.cells.Load()
		switch {
		case t != nil && len(t.slots) > 0:
			n := len(t.slots)
			c := t.slots[p.index(n)].Load()
			if c == nil {
				if !s.busy.Load() {
					fresh := newCell(s.fn(s.identity, x))
					if s.busy.CompareAndSwap(false, true) {
						created := false
						if cur := s.cells.Load(); cur != nil && len(cur.slots) > 0 {
							slot := &cur.slots[p.index(len(cur.slots))]
							if slot.Load() == nil {
								slot.Store(fresh)
								created = true
							}
						}
						s.busy.Store(false)
						if created {
							return
						}
						// the slot was filled meanwhile
						continue
					}
				}
				collide = false
			} else if !wasUncontended {
				// the CAS is known to have failed, rehash before retrying
				wasUncontended = true
			} else if c.cas(s.fn, x) {
				return
			} else if n >= s.maxCells || s.cells.Load() != t {
				// at max size or stale
				collide = false
			} else if !collide {
				collide = true
			} else if s.busy.CompareAndSwap(false, true) {
				if s.cells.Load() == t {
					grown := newCellTable(n << 1)
					for i := range t.slots {
						grown.slots[i].Store(t.slots[i].Load())
					}
					s.cells.Store(grown)
				}
				s.busy.Store(false)
				collide = false
				// retry with the expanded table
				continue
			}
			p.rehash()
		case !s.busy.Load() && s.cells.Load() == t && s.busy.CompareAndSwap(false, true):
			initialized := false
			if s.cells.Load() == t {
				fresh := newCellTable(2)
				fresh.slots[p.index(2)].Store(newCell(s.fn(s.identity, x)))
				s.cells.Store(fresh)
				initialized = true
			}
			s.busy.Store(false)
			if initialized {
				return
			}
		default:
			// fall back on the base
			if s.casBase(x) {
				return
			}
		}
	}
}

// Aggregate returns the combined value of base and every cell. It is not an
// atomic snapshot: updates racing with the read may or may not be reflected.
func (s *striped) Aggregate() float64 {
	v := s.base.Load()
	if t := s.cells.Load(); t != nil {
		for i := range t.slots {
			if c := t.slots[i].Load(); c != nil {
				v = s.fn(v, c.value.Load())
			}
		}
	}
	return v
}

// Reset sets base and every cell back to the identity. It is only accurate when
// no goroutine is updating concurrently.
func (s *striped) Reset() {
	s.base.Store(s.identity)
	if t := s.cells.Load(); t != nil {
		for i := range t.slots {
			if c := t.slots[i].Load(); c != nil {
				c.value.Store(s.identity)
			}
		}
	}
}

// GetThenReset swaps each value with the identity and returns what it collected.
// Each swap is atomic; the whole operation is not.
func (s *striped) GetThenReset() float64 {
	v := s.fn(s.identity, s.base.Swap(s.identity))
	if t := s.cells.Load(); t != nil {
		for i := range t.slots {
			if c := t.slots[i].Load(); c != nil {
				v = s.fn(v, c.value.Swap(s.identity))
			}
		}
	}
	return v
}

// Cells returns the size of the cell table, zero before first contention.
func (s *striped) Cells() int {
	if t := s.cells.Load(); t != nil {
		return len(t.slots)
	}
	return 0
}

func (s *striped) String() string {
	return fmt.Sprint(s.Aggregate())
}

// Int64Value returns the aggregate truncated towards zero.
func (s *striped) Int64Value() int64 {
	return int64(s.Aggregate())
}

func sum(current, x float64) float64 {
	return current + x
}

func maximum(current, x float64) float64 {
	if x > current {
		return x
	}
	return current
}

func minimum(current, x float64) float64 {
	if x < current {
		return x
	}
	return current
}

var (
	negativeInfinity = math.Inf(-1)
	positiveInfinity = math.Inf(1)
)
