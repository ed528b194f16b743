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
package striped

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	s := NewSum()
	assert.Equal(t, 0.0, s.Aggregate())
	for _, v := range []float64{11, 10, 10, 10, 3, 2, 1} {
		s.Add(v)
	}
	assert.Equal(t, 47.0, s.Aggregate())
	assert.Equal(t, int64(47), s.Int64Value())
	assert.Equal(t, "47", s.String())
}

func TestSum_Increment(t *testing.T) {
	c := NewSum()
	for i := 0; i < 7; i++ {
		c.Increment()
	}
	assert.Equal(t, 7.0, c.Aggregate())
}

func TestMax(t *testing.T) {
	m := NewMax()
	assert.True(t, math.IsInf(m.Aggregate(), -1))
	m.Update(-0.2233)
	assert.Equal(t, -0.2233, m.Aggregate())
	for _, v := range []float64{11, 10, 10, 10, 3, 2, 1} {
		m.Update(v)
	}
	assert.Equal(t, 11.0, m.Aggregate())
}

func TestMin(t *testing.T) {
	m := NewMin()
	assert.True(t, math.IsInf(m.Aggregate(), 1))
	for _, v := range []float64{11, 10, 10, 10, 3, 2.5, 0.5} {
		m.Update(v)
	}
	assert.Equal(t, 0.5, m.Aggregate())
	m.Update(-2)
	assert.Equal(t, -2.0, m.Aggregate())
}

func TestReset(t *testing.T) {
	s := NewSum()
	mx := NewMax()
	mn := NewMin()
	for _, v := range []float64{4, 8, 15} {
		s.Add(v)
		mx.Update(v)
		mn.Update(v)
	}
	s.Reset()
	mx.Reset()
	mn.Reset()
	assert.Equal(t, 0.0, s.Aggregate())
	assert.True(t, math.IsInf(mx.Aggregate(), -1))
	assert.True(t, math.IsInf(mn.Aggregate(), 1))

	s.Add(3)
	assert.Equal(t, 3.0, s.Aggregate())
}

func TestGetThenReset(t *testing.T) {
	s := NewSum()
	s.Add(16)
	s.Add(23)
	assert.Equal(t, 39.0, s.GetThenReset())
	assert.Equal(t, 0.0, s.Aggregate())

	m := NewMax()
	m.Update(42)
	m.Update(7)
	assert.Equal(t, 42.0, m.GetThenReset())
	assert.True(t, math.IsInf(m.Aggregate(), -1))
}

func TestConcurrentSum(t *testing.T) {
	const (
		goroutines = 32
		perWorker  = 5000
	)
	s := NewSum(WithMaxCells(8))
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, float64(goroutines*perWorker), s.Aggregate())
	assert.LessOrEqual(t, s.Cells(), 8)
}

func TestConcurrentMaxMin(t *testing.T) {
	const goroutines = 16
	mx := NewMax()
	mn := NewMin()
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				v := float64(offset*1000 + j)
				mx.Update(v)
				mn.Update(v)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, float64(goroutines*1000-1), mx.Aggregate())
	assert.Equal(t, 0.0, mn.Aggregate())
}

func TestConcurrentGetThenReset(t *testing.T) {
	// every increment is collected exactly once across the drains and the final read
	s := NewSum()
	var (
		wg      sync.WaitGroup
		drained float64
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			drained += s.GetThenReset()
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				s.Increment()
			}
		}()
	}
	wg.Wait()
	<-done
	assert.Equal(t, 16000.0, drained+s.Aggregate())
}

func TestWithMaxCells(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -1, want: defaultOptions().maxCells},
		{in: 0, want: defaultOptions().maxCells},
		{in: 1, want: 2},
		{in: 2, want: 2},
		{in: 3, want: 4},
		{in: 16, want: 16},
		{in: 17, want: 32},
	}
	for _, tt := range tests {
		o := defaultOptions()
		WithMaxCells(tt.in)(o)
		assert.Equal(t, tt.want, o.maxCells, "WithMaxCells(%d)", tt.in)
	}
}

func TestProbe(t *testing.T) {
	p := newProbe(0)
	assert.NotZero(t, p.hash)
	seen := map[uint32]bool{}
	for i := 0; i < 64; i++ {
		assert.False(t, seen[p.hash], "xorshift cycled early")
		seen[p.hash] = true
		idx := p.index(8)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 8)
		p.rehash()
		assert.NotZero(t, p.hash)
	}
	assert.NotEqual(t, newProbe(1).hash, newProbe(2).hash)
}

func TestProbeSeeding(t *testing.T) {
	seen := map[uint32]uint64{}
	for seq := uint64(0); seq < 1024; seq++ {
		p := newProbe(seq)
		assert.NotZero(t, p.hash)
		if prev, ok := seen[p.hash]; ok {
			t.Fatalf("sequences %d and %d share hash %#x", prev, seq, p.hash)
		}
		seen[p.hash] = seq
	}
	assert.Equal(t, newProbe(42).hash, newProbe(42).hash)
}

func TestProbePoolConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p := acquireProbe()
				assert.Less(t, p.index(16), 16)
				p.rehash()
				releaseProbe(p)
			}
		}()
	}
	wg.Wait()
}
