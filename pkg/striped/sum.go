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

// Sum is a striped adder. The zero of an empty Sum is 0.
type Sum struct {
	*striped
}

// NewSum returns a Sum with base 0.
func NewSum(opts ...Option) *Sum {
	return &Sum{striped: newStriped(sum, 0, opts...)}
}

// Add adds x.
func (s *Sum) Add(x float64) {
	s.accumulate(x)
}

// Increment adds one, it is how counts are kept.
func (s *Sum) Increment() {
	s.accumulate(1)
}
