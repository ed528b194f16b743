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

// AggregatedStatistics is the merged view of every non-empty bucket in the
// window at the time it was read.
type AggregatedStatistics struct {
	Size int64
	Sum  float64
	Min  float64
	Max  float64
	Avg  float64
}

// Empty is returned when no bucket in the window holds data.
var Empty = AggregatedStatistics{}

// NewAggregatedStatistics derives the average from size and sum.
func NewAggregatedStatistics(size int64, sum, min, max float64) AggregatedStatistics {
	if size <= 0 {
		return Empty
	}
	return AggregatedStatistics{
		Size: size,
		Sum:  sum,
		Min:  min,
		Max:  max,
		Avg:  sum / float64(size),
	}
}
