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
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "numastats"

const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelComponent = "component"
	LabelResult    = "result"
	LabelSink      = "sink"
)

// Values of LabelResult
const (
	ResultAccepted = "accepted"
	ResultExpired  = "expired"
	ResultInvalid  = "invalid"
	ResultLimited  = "rate_limited"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "A metric with a constant value '1', labeled by numastats binary version and platform",
	}, []string{LabelComponent, LabelVersion, LabelPlatform})
)

// Ingestion metrics
var (
	// TransactionsCount counts submitted transactions by outcome
	TransactionsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "transactions_total",
		Help:      "Total number of transactions submitted, by result",
	}, []string{LabelResult})

	ResetsCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "resets_total",
		Help:      "Total number of explicit resets of the window",
	})
)

// Rolling window metrics, set on every refresh
var (
	RollingCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "count",
		Help:      "Number of values in the current window",
	})

	RollingSum = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "sum",
		Help:      "Sum of the values in the current window",
	})

	RollingAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "avg",
		Help:      "Average of the values in the current window",
	})

	RollingMin = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "min",
		Help:      "Minimum of the values in the current window",
	})

	RollingMax = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "max",
		Help:      "Maximum of the values in the current window",
	})

	// RollingBuckets is the number of buckets in the ring, including empty ones
	RollingBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "rolling",
		Name:      "buckets",
		Help:      "Number of buckets in the ring",
	})
)

// Refresher metrics
var (
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Time taken to compute and publish one snapshot (10 microseconds to 1 second)",
		Buckets:   prometheus.ExponentialBucketsRange(0.00001, 1, 10),
	})

	SinkPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sink_publish_errors_total",
		Help:      "Total number of failed snapshot publications, by sink",
	}, []string{LabelSink})
)
