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
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// Go has no goroutine-local storage, so probes are pooled. sync.Pool keeps a
// per-P cache, which gives goroutines running on the same P a stable probe
// most of the time, the same effect a thread-local hash has.
var (
	probeSeq  atomic.Uint64
	probePool = sync.Pool{
		New: func() any {
			return newProbe(probeSeq.Inc())
		},
	}
)

// probe is the hash used to pick a cell. It is rehashed after a collision so
// that hot slots are abandoned.
type probe struct {
	hash uint32
}

func newProbe(seq uint64) *probe {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seq)
	sum := xxhash.Sum64(buf[:])
	h := uint32(sum ^ sum>>32)
	if h == 0 {
		// xorshift never leaves zero
		h = 1
	}
	return &probe{hash: h}
}

// index maps the probe onto a table of size n, n must be a power of two.
func (p *probe) index(n int) int {
	return int(p.hash & uint32(n-1))
}

// rehash advances the probe with Marsaglia xorshift.
func (p *probe) rehash() {
	h := p.hash
	h ^= h << 13
	h ^= h >> 17
	h ^= h << 5
	p.hash = h
}

func acquireProbe() *probe {
	return probePool.Get().(*probe)
}

func releaseProbe(p *probe) {
	probePool.Put(p)
}
