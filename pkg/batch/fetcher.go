package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/client"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/ratelimit"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
)

// ErrGeneratorShape is returned when a regenerated request list does not
// have the length of the first one.
var ErrGeneratorShape = errors.New("generator returned a list of different length")

// Doer performs a single request. *client.Client implements it.
type Doer interface {
	Do(ctx context.Context, d request.Descriptor) (json.RawMessage, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, d request.Descriptor) (json.RawMessage, error)

// Do calls fn(ctx, d).
func (fn DoerFunc) Do(ctx context.Context, d request.Descriptor) (json.RawMessage, error) {
	return fn(ctx, d)
}

// Fetcher runs batches against a Doer.
type Fetcher struct {
	doer       Doer
	config     Config
	logger     zerolog.Logger
	bucketOpts []ratelimit.Option
	newRunID   func() string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger. Each run adds its run_id.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithBucketOptions passes options to the bucket created for every run.
func WithBucketOptions(opts ...ratelimit.Option) Option {
	return func(f *Fetcher) { f.bucketOpts = append(f.bucketOpts, opts...) }
}

// outcome is one attempt as reported by a worker.
type outcome struct {
	index   int
	payload json.RawMessage
	err     error
}

// NewFetcher creates a fetcher. It fails if cfg is invalid.
func NewFetcher(doer Doer, cfg Config, opts ...Option) (*Fetcher, error) {
	if doer == nil {
		return nil, errors.New("batch fetcher needs a Doer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Method != "" {
		cfg.Method, _ = request.NormalizeMethod(cfg.Method)
	}

	f := &Fetcher{
		doer:     doer,
		config:   cfg,
		logger:   logging.NewLogger(logging.ComponentBatchFetcher),
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run fetches with a new default client.
func Run(ctx context.Context, gen request.Generator, cfg Config) (*Report, error) {
	c := client.New(client.DefaultConfig())
	defer c.Close()

	f, err := NewFetcher(c, cfg)
	if err != nil {
		return nil, err
	}
	return f.Run(ctx, gen)
}

// Run executes one batch. The returned report has one slot per descriptor of
// the first generated list, in the same order.
//
// A nil report is returned only when the first generator call fails. If a
// later generator call fails the run stops, pending slots become unresolved
// and the report is returned together with the error. Cancellation is not an
// error: it ends the run with ReasonCancelled.
func (f *Fetcher) Run(ctx context.Context, gen request.Generator) (*Report, error) {
	if gen == nil {
		return nil, errors.New("batch run needs a generator")
	}

	if f.config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Deadline)
		defer cancel()
	}

	start := time.Now()
	report := &Report{RunID: f.newRunID(), StartedAt: start}
	logger := f.logger.With().Str("run_id", report.RunID).Logger()

	descs, err := gen(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate requests: %w", err)
	}
	n := len(descs)

	bucket, err := ratelimit.NewBucket(f.config.bucketConfig(),
		append([]ratelimit.Option{ratelimit.WithLogger(logger)}, f.bucketOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("create admission bucket: %w", err)
	}

	logger.Info().
		Int("requests", n).
		Int("retry_budget", f.config.RetryBudget).
		Int("max_concurrency", f.config.MaxConcurrency).
		Msg("Starting batch run")

	st := newState(n)
	backoff := newPassBackoff(f.config.PassBackoff)
	var runErr error

	for len(st.pending) > 0 {
		report.Passes++
		f.dispatch(ctx, logger, report.Passes, bucket, descs, st)
		st.partition()

		if len(st.pending) == 0 {
			report.Reason = ReasonSettled
			break
		}
		if ctx.Err() != nil {
			report.Reason = ReasonCancelled
			break
		}
		if report.Passes > f.config.RetryBudget {
			report.Reason = ReasonBudgetExhausted
			break
		}

		if d := backoff.next(); d > 0 {
			passBackoffSeconds.Observe(d.Seconds())
			logger.Debug().
				Int("pass", report.Passes).
				Dur("backoff", d).
				Msg("Waiting before retry pass")
			if err := wait(ctx, d); err != nil {
				report.Reason = ReasonCancelled
				break
			}
		}

		descs, runErr = f.regenerate(ctx, gen, n)
		if runErr != nil {
			if ctx.Err() != nil {
				report.Reason = ReasonCancelled
				runErr = nil
				break
			}
			report.Reason = ReasonGeneratorFailed
			logger.Error().Err(runErr).Int("pass", report.Passes).Msg("Regeneration failed")
			break
		}
	}
	if n == 0 {
		report.Reason = ReasonSettled
	}

	report.Resolved, report.Unresolved = st.finalize()
	report.Results = st.slots
	report.Duration = time.Since(start)
	slotsResolvedTotal.WithLabelValues(StatusCompleted.String()).Add(float64(report.Resolved))
	slotsResolvedTotal.WithLabelValues(StatusUnresolved.String()).Add(float64(report.Unresolved))

	event := logger.Info()
	if report.Unresolved > 0 {
		event = logger.Warn()
	}
	event.
		Int("passes", report.Passes).
		Int("completed", report.Resolved).
		Int("unresolved", report.Unresolved).
		Str("reason", string(report.Reason)).
		Dur("duration", report.Duration).
		Msg("Batch run complete")

	return report, runErr
}

func (f *Fetcher) regenerate(ctx context.Context, gen request.Generator, n int) ([]request.Descriptor, error) {
	descs, err := gen(ctx)
	if err != nil {
		return nil, fmt.Errorf("regenerate requests: %w", err)
	}
	if len(descs) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrGeneratorShape, len(descs), n)
	}
	return descs, nil
}

// dispatch runs one pass over the pending slots and records every outcome.
// It returns once all dispatched requests have settled.
func (f *Fetcher) dispatch(ctx context.Context, logger zerolog.Logger, pass int, bucket *ratelimit.Bucket, descs []request.Descriptor, st *state) {
	passStart := time.Now()
	passesTotal.Inc()

	pending := len(st.pending)
	workers := f.config.MaxConcurrency
	if workers > pending {
		workers = pending
	}

	logger.Info().
		Int("pass", pass).
		Int("pending", pending).
		Int("workers", workers).
		Msg("Starting pass")

	queue := make(chan int, pending)
	results := make(chan outcome, pending)

	for _, idx := range st.pending {
		queue <- idx
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, logger, bucket, descs, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for o := range results {
		st.record(o)
		if o.err == nil {
			completed++
		}
	}

	d := time.Since(passStart)
	passDuration.Observe(d.Seconds())
	bs := bucket.State()
	event := logger.Info().
		Int("pass", pass).
		Int("completed", completed).
		Int("failed", pending-completed).
		Float64("tokens", bs.Tokens).
		Dur("duration", d)
	if bs.IsStarved() {
		event = event.Bool("starved", true)
	} else if w := bs.ExpectedWait(); w > 0 {
		event = event.Dur("expected_wait", w)
	}
	event.Msg("Pass complete")
}

// worker processes slot indices from the queue.
func (f *Fetcher) worker(ctx context.Context, logger zerolog.Logger, bucket *ratelimit.Bucket, descs []request.Descriptor, queue <-chan int, results chan<- outcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for idx := range queue {
		results <- f.attempt(ctx, logger, bucket, descs[idx], idx)
		processed++
	}

	logger.Debug().
		Int("worker_id", workerID).
		Int("processed", processed).
		Msg("Worker completed")
}

func (f *Fetcher) attempt(ctx context.Context, logger zerolog.Logger, bucket *ratelimit.Bucket, d request.Descriptor, idx int) outcome {
	if err := bucket.Acquire(ctx); err != nil {
		class := client.ErrorClassAdmission
		if ctx.Err() != nil {
			class = client.ErrorClassCancelled
		}
		return outcome{index: idx, err: &client.FetchError{Class: class, Message: "admission", Err: err}}
	}

	if f.config.Method != "" {
		d.Method = f.config.Method
	}

	payload, err := f.doer.Do(ctx, d)
	if err != nil {
		logger.Debug().
			Err(err).
			Int("index", idx).
			Str("proxy", d.Proxy.String()).
			Str("error_class", string(client.ClassOf(err))).
			Msg("Request failed")
		return outcome{index: idx, err: err}
	}
	return outcome{index: idx, payload: payload}
}
