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

// Max keeps the largest value seen. An empty Max aggregates to -Inf.
type Max struct {
	*striped
}

func NewMax(opts ...Option) *Max {
	return &Max{striped: newStriped(maximum, negativeInfinity, opts...)}
}

// Update raises the maximum to x if x is larger.
func (m *Max) Update(x float64) {
	m.accumulate(x)
}
