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
package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	statsv1 "github.com/numaproj/numastats/pkg/apis/statistics/v1"
	"github.com/numaproj/numastats/pkg/shared/logging"
	sharedutil "github.com/numaproj/numastats/pkg/shared/util"
)

// tolerance for comparing sums computed in a different order
const tolerance = 1e-6

type loadgenOptions struct {
	addr     string
	workers  int
	requests int
	rate     float64
	reset    bool
	timeout  time.Duration
}

type loadgen struct {
	opts   loadgenOptions
	client *http.Client
	log    *zap.SugaredLogger
}

// loadgenResult holds the statistics computed from the accepted submissions
// next to what the server reported.
type loadgenResult struct {
	Expected statsv1.Statistics
	Observed statsv1.Statistics
	Rejected int
}

func (r loadgenResult) matches() bool {
	return r.Expected.Count == r.Observed.Count &&
		almostEqual(r.Expected.Sum, r.Observed.Sum) &&
		almostEqual(r.Expected.Avg, r.Observed.Avg) &&
		almostEqual(r.Expected.Max, r.Observed.Max) &&
		almostEqual(r.Expected.Min, r.Observed.Min)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func NewLoadgenCommand() *cobra.Command {
	opts := loadgenOptions{}
	command := &cobra.Command{
		Use:   "loadgen",
		Short: "Submit random transactions concurrently and verify the reported statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logging.WithLogger(ctx, logging.NewLogger().Named("loadgen"))
			lg, err := newLoadgen(ctx, opts)
			if err != nil {
				return err
			}
			result, err := lg.run(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "expected: %+v\nobserved: %+v\nrejected: %d\n", result.Expected, result.Observed, result.Rejected)
			if !result.matches() {
				return errors.New("observed statistics do not match the submitted transactions")
			}
			return nil
		},
	}
	command.Flags().StringVar(&opts.addr, "addr", sharedutil.LookupEnvStringOr("NUMASTATS_ADDR", "http://localhost:8080"), "Base URL of the numastats server.")
	command.Flags().IntVarP(&opts.workers, "workers", "w", sharedutil.LookupEnvIntOr("NUMASTATS_LOADGEN_WORKERS", 8), "Number of concurrent submitters.")
	command.Flags().IntVarP(&opts.requests, "requests", "n", sharedutil.LookupEnvIntOr("NUMASTATS_LOADGEN_REQUESTS", 1000), "Total number of transactions to submit.")
	command.Flags().Float64Var(&opts.rate, "rate", 0, "Transactions per second across all workers, 0 means unlimited.")
	command.Flags().BoolVar(&opts.reset, "reset", sharedutil.LookupEnvBoolOr("NUMASTATS_LOADGEN_RESET", true), "Whether to delete all transactions before submitting.")
	command.Flags().DurationVar(&opts.timeout, "timeout", sharedutil.LookupEnvDurationOr("NUMASTATS_LOADGEN_TIMEOUT", 30*time.Second), "How long to wait for the statistics to catch up.")
	return command
}

func newLoadgen(ctx context.Context, opts loadgenOptions) (*loadgen, error) {
	if opts.workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", opts.workers)
	}
	if opts.requests <= 0 {
		return nil, fmt.Errorf("requests must be positive, got %d", opts.requests)
	}
	opts.addr = strings.TrimRight(opts.addr, "/")
	return &loadgen{
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logging.FromContext(ctx),
	}, nil
}

func (l *loadgen) run(ctx context.Context) (loadgenResult, error) {
	if l.opts.reset {
		if err := l.reset(ctx); err != nil {
			return loadgenResult{}, err
		}
	}
	accepted, rejected, err := l.submit(ctx)
	if err != nil {
		return loadgenResult{}, err
	}
	expected, err := expectedStatistics(accepted)
	if err != nil {
		return loadgenResult{}, err
	}
	l.log.Infow("Submitted transactions", zap.Int("accepted", len(accepted)), zap.Int("rejected", rejected))
	observed, err := l.await(ctx, expected.Count)
	if err != nil {
		return loadgenResult{}, err
	}
	return loadgenResult{Expected: expected, Observed: observed, Rejected: rejected}, nil
}

func (l *loadgen) reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, l.opts.addr+"/transactions", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reset transactions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to reset transactions: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// submit posts the transactions and returns the amounts the server accepted
// along with the number of rejected ones.
func (l *loadgen) submit(ctx context.Context) ([]float64, int, error) {
	limit := rate.Inf
	if l.opts.rate > 0 {
		limit = rate.Limit(l.opts.rate)
	}
	limiter := rate.NewLimiter(limit, l.opts.workers)

	var (
		lock     sync.Mutex
		accepted = make([]float64, 0, l.opts.requests)
		rejected int
	)
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < l.opts.workers; w++ {
		n := l.opts.requests / l.opts.workers
		if w < l.opts.requests%l.opts.workers {
			n++
		}
		seed := time.Now().UnixNano() + int64(w)
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(seed))
			local := make([]float64, 0, n)
			localRejected := 0
			for i := 0; i < n; i++ {
				if err := limiter.Wait(gCtx); err != nil {
					return err
				}
				amount := math.Round(rnd.Float64()*100000) / 100
				ok, err := l.post(gCtx, amount, time.Now().UnixMilli())
				if err != nil {
					return err
				}
				if ok {
					local = append(local, amount)
				} else {
					localRejected++
				}
			}
			lock.Lock()
			defer lock.Unlock()
			accepted = append(accepted, local...)
			rejected += localRejected
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return accepted, rejected, nil
}

func (l *loadgen) post(ctx context.Context, amount float64, timestamp int64) (bool, error) {
	ts := statsv1.EpochMillis(timestamp)
	body, err := json.Marshal(statsv1.Transaction{Amount: &amount, Timestamp: &ts})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.opts.addr+"/transactions", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to submit transaction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusCreated:
		return true, nil
	case http.StatusNoContent, http.StatusTooManyRequests:
		return false, nil
	default:
		return false, fmt.Errorf("failed to submit transaction: unexpected status %d", resp.StatusCode)
	}
}

// await polls the statistics until the expected count shows up or the timeout expires.
func (l *loadgen) await(ctx context.Context, count int64) (statsv1.Statistics, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = l.opts.timeout

	var observed statsv1.Statistics
	err := backoff.Retry(func() error {
		s, err := l.statistics(ctx)
		if err != nil {
			return err
		}
		observed = s
		if s.Count != count {
			return fmt.Errorf("observed count %d, expected %d", s.Count, count)
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		l.log.Warnw("Statistics did not catch up", zap.Error(err))
	}
	return observed, nil
}

func (l *loadgen) statistics(ctx context.Context) (statsv1.Statistics, error) {
	var s statsv1.Statistics
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.opts.addr+"/statistics", nil)
	if err != nil {
		return s, backoff.Permanent(err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return s, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return s, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return s, backoff.Permanent(fmt.Errorf("failed to decode statistics: %w", err))
	}
	return s, nil
}

func expectedStatistics(amounts []float64) (statsv1.Statistics, error) {
	if len(amounts) == 0 {
		return statsv1.Statistics{}, nil
	}
	data := stats.Float64Data(amounts)
	sum, err := stats.Sum(data)
	if err != nil {
		return statsv1.Statistics{}, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return statsv1.Statistics{}, err
	}
	hi, err := stats.Max(data)
	if err != nil {
		return statsv1.Statistics{}, err
	}
	lo, err := stats.Min(data)
	if err != nil {
		return statsv1.Statistics{}, err
	}
	return statsv1.Statistics{Count: int64(len(amounts)), Sum: sum, Avg: mean, Max: hi, Min: lo}, nil
}
