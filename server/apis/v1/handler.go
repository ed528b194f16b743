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
package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/numaproj/numastats"
	statsv1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/metrics"
	"github.com/numaproj/numastats/pkg/rolling"
	"github.com/numaproj/numastats/pkg/shared/logging"
	"github.com/numaproj/numastats/server/apis"
)

// StatisticsService is the rolling window behind the API.
type StatisticsService interface {
	AddValueAt(value float64, timestamp int64) bool
	Reset()
	Buckets() []*rolling.Bucket
	WindowMillis() int64
	NumBuckets() int
	BucketMillis() int64
}

// SnapshotCache serves the refreshed statistics.
type SnapshotCache interface {
	Latest() statsv1.Snapshot
	History() []statsv1.Snapshot
}

type handlerOptions struct {
	// readonly rejects every write
	readonly bool
	// limiter throttles transaction submissions, nil disables throttling
	limiter *rate.Limiter
}

func defaultHandlerOptions() *handlerOptions {
	return &handlerOptions{}
}

type HandlerOption func(*handlerOptions)

// WithReadOnlyMode sets the server to read-only mode.
func WithReadOnlyMode() HandlerOption {
	return func(o *handlerOptions) {
		o.readonly = true
	}
}

// WithIngestLimit accepts at most limit transactions per second, with bursts
// of up to burst. A non-positive limit disables throttling.
func WithIngestLimit(limit float64, burst int) HandlerOption {
	return func(o *handlerOptions) {
		if limit > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		}
	}
}

var _ apis.Handler = (*handler)(nil)

type handler struct {
	stats StatisticsService
	cache SnapshotCache
	opts  *handlerOptions
	log   *zap.SugaredLogger
}

// NewHandler is used to provide a new instance of the handler type
func NewHandler(ctx context.Context, stats StatisticsService, cache SnapshotCache, opts ...HandlerOption) (*handler, error) {
	if stats == nil || cache == nil {
		return nil, errors.New("statistics service and snapshot cache are required")
	}
	o := defaultHandlerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &handler{
		stats: stats,
		cache: cache,
		opts:  o,
		log:   logging.FromContext(ctx).Named("Handler"),
	}, nil
}

// PostTransaction adds a transaction to the window. It responds 201 when the
// transaction was counted and 204 when it is older than the window.
func (h *handler) PostTransaction(c *gin.Context) {
	if h.opts.readonly {
		errMsg := "Failed to perform this operation in read only mode"
		c.JSON(http.StatusForbidden, NewAPIResponse(&errMsg, nil))
		return
	}
	if h.opts.limiter != nil && !h.opts.limiter.Allow() {
		metrics.TransactionsCount.WithLabelValues(metrics.ResultLimited).Inc()
		errMsg := "Too many transactions, retry later"
		c.JSON(http.StatusTooManyRequests, NewAPIResponse(&errMsg, nil))
		return
	}
	var tx statsv1.Transaction
	if err := bindJson(c, &tx); err != nil {
		metrics.TransactionsCount.WithLabelValues(metrics.ResultInvalid).Inc()
		h.respondWithError(c, http.StatusBadRequest, fmt.Sprintf("Failed to decode JSON request body, %s", err.Error()))
		return
	}
	if err := tx.Validate(); err != nil {
		metrics.TransactionsCount.WithLabelValues(metrics.ResultInvalid).Inc()
		h.respondWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid transaction, %s", err.Error()))
		return
	}
	if h.stats.AddValueAt(*tx.Amount, int64(*tx.Timestamp)) {
		metrics.TransactionsCount.WithLabelValues(metrics.ResultAccepted).Inc()
		c.Status(http.StatusCreated)
		return
	}
	metrics.TransactionsCount.WithLabelValues(metrics.ResultExpired).Inc()
	c.Status(http.StatusNoContent)
}

// DeleteTransactions drops everything in the window. The cached statistics
// catch up on the next refresh.
func (h *handler) DeleteTransactions(c *gin.Context) {
	if h.opts.readonly {
		errMsg := "Failed to perform this operation in read only mode"
		c.JSON(http.StatusForbidden, NewAPIResponse(&errMsg, nil))
		return
	}
	h.stats.Reset()
	metrics.ResetsCount.Inc()
	h.log.Info("Statistics window reset")
	c.Status(http.StatusNoContent)
}

// GetStatistics returns the latest refreshed statistics without touching the window.
func (h *handler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Latest().Statistics)
}

// GetStatisticsHistory returns the retained snapshots, oldest first.
func (h *handler) GetStatisticsHistory(c *gin.Context) {
	c.JSON(http.StatusOK, NewAPIResponse(nil, h.cache.History()))
}

// ListBuckets returns a summary of every bucket of the window, oldest first.
func (h *handler) ListBuckets(c *gin.Context) {
	buckets := h.stats.Buckets()
	summaries := make([]statsv1.BucketSummary, 0, len(buckets))
	for _, b := range buckets {
		s := b.Summary()
		summaries = append(summaries, statsv1.BucketSummary{
			WindowStart: s.WindowStart,
			Count:       s.Count,
			Sum:         s.Sum,
			Min:         s.Min,
			Max:         s.Max,
		})
	}
	c.JSON(http.StatusOK, NewAPIResponse(nil, summaries))
}

// GetSysInfo returns the version and the window layout.
func (h *handler) GetSysInfo(c *gin.Context) {
	c.JSON(http.StatusOK, NewAPIResponse(nil, SysInfo{
		Version:      numastats.GetVersion().String(),
		WindowMillis: h.stats.WindowMillis(),
		NumBuckets:   h.stats.NumBuckets(),
		BucketMillis: h.stats.BucketMillis(),
	}))
}

func (h *handler) respondWithError(c *gin.Context, code int, message string) {
	h.log.Debugw("Rejected request", zap.String("path", c.FullPath()), zap.String("reason", message))
	c.JSON(code, NewAPIResponse(&message, nil))
}

func bindJson(c *gin.Context, obj interface{}) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(obj); err != nil {
		return err
	}
	return nil
}
