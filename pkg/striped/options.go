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

import "runtime"

type options struct {
	// maxCells bounds the cell table, always a power of two.
	maxCells int
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		maxCells: nextPowerOfTwo(runtime.GOMAXPROCS(0)),
	}
}

// WithMaxCells caps the number of cells, rounded up to a power of two. Values
// below 2 are raised to 2 since the first table already holds two cells.
func WithMaxCells(n int) Option {
	return func(o *options) {
		if n <= 0 {
			return
		}
		o.maxCells = nextPowerOfTwo(n)
	}
}

func nextPowerOfTwo(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}
