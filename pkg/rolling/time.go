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
	"k8s.io/utils/clock"
)

// TimeSource reports the current time in epoch milliseconds.
type TimeSource interface {
	CurrentTimeMillis() int64
}

// TimeSourceFunc adapts a plain function to TimeSource.
type TimeSourceFunc func() int64

func (f TimeSourceFunc) CurrentTimeMillis() int64 {
	return f()
}

type clockTimeSource struct {
	clock clock.PassiveClock
}

// FromClock reads milliseconds off a clock, which lets tests drive the window
// with a fake clock.
func FromClock(c clock.PassiveClock) TimeSource {
	return &clockTimeSource{clock: c}
}

func (c *clockTimeSource) CurrentTimeMillis() int64 {
	return c.clock.Now().UnixMilli()
}

// SystemTime is backed by the wall clock.
var SystemTime = FromClock(clock.RealClock{})
