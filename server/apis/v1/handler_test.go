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
	"net/http"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	clocktesting "k8s.io/utils/clock/testing"

	statsv1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/rolling"
	"github.com/numaproj/numastats/pkg/shared/logging"
)

const (
	testNow    = int64(1_700_000_000_000)
	testWindow = int64(60_000)
)

type fakeCache struct {
	latest  statsv1.Snapshot
	history []statsv1.Snapshot
}

func (f *fakeCache) Latest() statsv1.Snapshot {
	return f.latest
}

func (f *fakeCache) History() []statsv1.Snapshot {
	return f.history
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), zap.NewNop().Sugar())
}

func newTestHandler(t *testing.T, cache SnapshotCache, opts ...HandlerOption) (*handler, *rolling.RollingStatistics) {
	t.Helper()
	fc := clocktesting.NewFakeClock(time.UnixMilli(testNow))
	stats, err := rolling.New(testWindow, 60, rolling.WithClock(fc))
	require.NoError(t, err)
	h, err := NewHandler(testContext(), stats, cache, opts...)
	require.NoError(t, err)
	return h, stats
}

func newTestExpect(t *testing.T, h *handler) *httpexpect.Expect {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/transactions", h.PostTransaction)
	r.DELETE("/transactions", h.DeleteTransactions)
	r.GET("/statistics", h.GetStatistics)
	r.GET("/api/v1/statistics/history", h.GetStatisticsHistory)
	r.GET("/api/v1/statistics/buckets", h.ListBuckets)
	r.GET("/api/v1/sysinfo", h.GetSysInfo)
	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  "http://numastats.local",
		Reporter: httpexpect.NewAssertReporter(t),
		Client: &http.Client{
			Transport: httpexpect.NewBinder(r),
		},
	})
}

func TestNewHandler(t *testing.T) {
	_, err := NewHandler(testContext(), nil, &fakeCache{})
	assert.Error(t, err)

	h, _ := newTestHandler(t, &fakeCache{}, WithReadOnlyMode(), WithIngestLimit(10, 5), nil)
	assert.True(t, h.opts.readonly)
	require.NotNil(t, h.opts.limiter)
	assert.Equal(t, 5, h.opts.limiter.Burst())

	h, _ = newTestHandler(t, &fakeCache{}, WithIngestLimit(0, 5))
	assert.Nil(t, h.opts.limiter)
}

func TestHandler_PostTransaction(t *testing.T) {
	h, stats := newTestHandler(t, &fakeCache{})
	e := newTestExpect(t, h)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "in window", body: `{"amount": 12.5, "timestamp": 1700000000000}`, code: http.StatusCreated},
		{name: "string timestamp", body: `{"amount": 2.5, "timestamp": "1699999999000"}`, code: http.StatusCreated},
		{name: "date timestamp", body: `{"amount": -5, "timestamp": "2023-11-14T22:13:10Z"}`, code: http.StatusCreated},
		{name: "on window boundary", body: `{"amount": 1, "timestamp": 1699999940000}`, code: http.StatusNoContent},
		{name: "too old", body: `{"amount": 1, "timestamp": 1600000000000}`, code: http.StatusNoContent},
		{name: "missing amount", body: `{"timestamp": 1700000000000}`, code: http.StatusBadRequest},
		{name: "missing timestamp", body: `{"amount": 1}`, code: http.StatusBadRequest},
		{name: "unknown field", body: `{"amount": 1, "timestamp": 1700000000000, "currency": "EUR"}`, code: http.StatusBadRequest},
		{name: "bad timestamp", body: `{"amount": 1, "timestamp": "yesterday-ish"}`, code: http.StatusBadRequest},
		{name: "not json", body: `amount=1`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.POST("/transactions").WithHeader("Content-Type", "application/json").
				WithBytes([]byte(tt.body)).Expect().Status(tt.code)
			if tt.code == http.StatusBadRequest {
				resp.JSON().Object().Value("errMessage").String().NotEmpty()
			}
		})
	}

	agg := stats.GetRolling()
	assert.Equal(t, int64(3), agg.Size)
	assert.Equal(t, 10.0, agg.Sum)
	assert.Equal(t, 12.5, agg.Max)
	assert.Equal(t, -5.0, agg.Min)
}

func TestHandler_ReadOnly(t *testing.T) {
	h, stats := newTestHandler(t, &fakeCache{}, WithReadOnlyMode())
	e := newTestExpect(t, h)

	e.POST("/transactions").WithBytes([]byte(`{"amount": 1, "timestamp": 1700000000000}`)).
		Expect().Status(http.StatusForbidden).JSON().Object().ContainsKey("errMessage")
	e.DELETE("/transactions").Expect().Status(http.StatusForbidden)
	assert.Equal(t, int64(0), stats.GetRolling().Size)
}

func TestHandler_IngestLimit(t *testing.T) {
	h, stats := newTestHandler(t, &fakeCache{}, WithIngestLimit(0.001, 2))
	e := newTestExpect(t, h)

	body := []byte(`{"amount": 1, "timestamp": 1700000000000}`)
	e.POST("/transactions").WithBytes(body).Expect().Status(http.StatusCreated)
	e.POST("/transactions").WithBytes(body).Expect().Status(http.StatusCreated)
	e.POST("/transactions").WithBytes(body).Expect().Status(http.StatusTooManyRequests)
	assert.Equal(t, int64(2), stats.GetRolling().Size)
}

func TestHandler_DeleteTransactions(t *testing.T) {
	h, stats := newTestHandler(t, &fakeCache{})
	e := newTestExpect(t, h)

	assert.True(t, stats.AddValueAt(3, testNow))
	e.DELETE("/transactions").Expect().Status(http.StatusNoContent).Body().IsEmpty()
	assert.Equal(t, rolling.Empty, stats.GetRolling())
}

func TestHandler_GetStatistics(t *testing.T) {
	cache := &fakeCache{
		latest: statsv1.Snapshot{
			Statistics:  statsv1.Statistics{Count: 2, Sum: 30, Avg: 15, Max: 20, Min: 10},
			RefreshedAt: testNow,
		},
	}
	h, _ := newTestHandler(t, cache)
	e := newTestExpect(t, h)

	obj := e.GET("/statistics").Expect().Status(http.StatusOK).JSON().Object()
	obj.IsEqual(map[string]interface{}{
		"count": 2,
		"sum":   30,
		"avg":   15,
		"max":   20,
		"min":   10,
	})
	obj.NotContainsKey("refreshedAt")
}

func TestHandler_GetStatisticsHistory(t *testing.T) {
	cache := &fakeCache{
		history: []statsv1.Snapshot{
			{Statistics: statsv1.Statistics{Count: 1, Sum: 1, Avg: 1, Max: 1, Min: 1}, RefreshedAt: testNow - 100},
			{Statistics: statsv1.Statistics{Count: 2, Sum: 3, Avg: 1.5, Max: 2, Min: 1}, RefreshedAt: testNow},
		},
	}
	h, _ := newTestHandler(t, cache)
	e := newTestExpect(t, h)

	data := e.GET("/api/v1/statistics/history").Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Array()
	data.Length().IsEqual(2)
	data.Value(0).Object().Value("refreshedAt").Number().IsEqual(testNow - 100)
	data.Value(1).Object().Value("count").Number().IsEqual(2)
}

func TestHandler_ListBuckets(t *testing.T) {
	h, stats := newTestHandler(t, &fakeCache{})
	e := newTestExpect(t, h)

	e.GET("/api/v1/statistics/buckets").Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Array().IsEmpty()

	assert.True(t, stats.AddValueAt(4, testNow))
	assert.True(t, stats.AddValueAt(6, testNow))
	data := e.GET("/api/v1/statistics/buckets").Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Array()
	data.Length().IsEqual(1)
	bucket := data.Value(0).Object()
	bucket.Value("windowStart").Number().IsEqual(testNow)
	bucket.Value("count").Number().IsEqual(2)
	bucket.Value("sum").Number().IsEqual(10)
	bucket.Value("min").Number().IsEqual(4)
	bucket.Value("max").Number().IsEqual(6)
}

func TestHandler_GetSysInfo(t *testing.T) {
	h, _ := newTestHandler(t, &fakeCache{})
	e := newTestExpect(t, h)

	data := e.GET("/api/v1/sysinfo").Expect().Status(http.StatusOK).JSON().Object().Value("data").Object()
	data.Value("version").String().NotEmpty()
	data.Value("windowMillis").Number().IsEqual(testWindow)
	data.Value("numBuckets").Number().IsEqual(60)
	data.Value("bucketMillis").Number().IsEqual(1000)
}
