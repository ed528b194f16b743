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
// Package v1 contains the JSON payloads of the statistics API.
package v1

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/araddon/dateparse"
	"github.com/goccy/go-json"
)

var (
	ErrMissingAmount    = errors.New("amount is required")
	ErrMissingTimestamp = errors.New("timestamp is required")
	ErrInvalidAmount    = errors.New("amount must be a finite number")
)

// Transaction is a single value submitted for aggregation.
type Transaction struct {
	Amount *float64 `json:"amount"`
	// Timestamp is when the transaction happened.
	Timestamp *EpochMillis `json:"timestamp"`
}

// Validate checks that both fields are present.
func (t Transaction) Validate() error {
	if t.Amount == nil {
		return ErrMissingAmount
	}
	if math.IsNaN(*t.Amount) || math.IsInf(*t.Amount, 0) {
		return ErrInvalidAmount
	}
	if t.Timestamp == nil {
		return ErrMissingTimestamp
	}
	return nil
}

// EpochMillis is a point in time in milliseconds since the Unix epoch. It is
// decoded from a JSON number, or from a string holding either digits or a
// date such as "2024-03-01T10:00:00.123Z".
type EpochMillis int64

func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return e.parseString(s)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp must be a number or a date string: %w", err)
	}
	if v, err := n.Int64(); err == nil {
		*e = EpochMillis(v)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", n.String(), err)
	}
	*e = EpochMillis(int64(f))
	return nil
}

func (e *EpochMillis) parseString(s string) error {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*e = EpochMillis(v)
		return nil
	}
	t, err := dateparse.ParseStrict(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*e = EpochMillis(t.UnixMilli())
	return nil
}

// Statistics is the aggregate over the current window.
type Statistics struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

// Snapshot is a refreshed copy of the statistics.
type Snapshot struct {
	Statistics
	// RefreshedAt is the refresh time in epoch milliseconds.
	RefreshedAt int64 `json:"refreshedAt"`
}

// BucketSummary describes one bucket of the window.
type BucketSummary struct {
	WindowStart int64   `json:"windowStart"`
	Count       int64   `json:"count"`
	Sum         float64 `json:"sum"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}
