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
package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	statsv1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/config"
	"github.com/numaproj/numastats/pkg/shared/logging"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), zap.NewNop().Sugar())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	c, err := config.LoadConfig(config.New(), "", nil, nil)
	require.NoError(t, err)
	c.Statistics.RefreshInterval = 10 * time.Millisecond
	c.Server.Port = freePort(t)
	c.Metrics.Port = freePort(t)
	return c
}

func TestNewDaemonServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Statistics.WindowMillis = 10_000
	cfg.Statistics.NumBuckets = 10
	ds, err := NewDaemonServer(testContext(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), ds.Statistics().BucketMillis())
	assert.Equal(t, 10*time.Millisecond, ds.Refresher().Interval())
	assert.Equal(t, int64(0), ds.Refresher().Latest().Count)

	cfg.Statistics.NumBuckets = 3
	_, err = NewDaemonServer(testContext(), cfg)
	assert.Error(t, err)
}

func TestNewDaemonServer_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Sinks.Redis.Enabled = true
	cfg.Sinks.Redis.Addrs = []string{addr}
	_, err := NewDaemonServer(testContext(), cfg)
	assert.Error(t, err)
}

func TestDaemonServer_ApplyConfig(t *testing.T) {
	cfg := testConfig(t)
	ds, err := NewDaemonServer(testContext(), cfg)
	require.NoError(t, err)

	updated := *cfg
	updated.Statistics.RefreshInterval = 250 * time.Millisecond
	ds.ApplyConfig(&updated)
	assert.Equal(t, 250*time.Millisecond, ds.Refresher().Interval())
}

func TestDaemonServer_Run(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Sinks.Log.Enabled = true
	cfg.Sinks.Redis.Enabled = true
	cfg.Sinks.Redis.Addrs = []string{mr.Addr()}

	ds, err := NewDaemonServer(testContext(), cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(testContext())
	done := make(chan error, 1)
	go func() {
		done <- ds.Run(ctx)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	body := []byte(fmt.Sprintf(`{"amount": 42.5, "timestamp": %d}`, time.Now().UnixMilli()))
	require.Eventually(t, func() bool {
		resp, err := client.Post(base+"/transactions", "application/json", bytes.NewReader(body))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusCreated
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		resp, err := client.Get(base + "/statistics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var s statsv1.Statistics
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return false
		}
		return s.Count == 1 && s.Sum == 42.5
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return mr.Exists(cfg.Sinks.Redis.Key)
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Metrics.Port))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon server did not stop")
	}
}
