package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"cryptoScreener/internal/cache"
	"cryptoScreener/internal/domain"
	"cryptoScreener/internal/fetcher"
	"cryptoScreener/internal/ports"
)

// RunState is the stage the pipeline is currently in.
type RunState int32

const (
	StateIdle RunState = iota
	StateResolvingUniverse
	StateFetchingBatches
	StateMerging
	StateCached
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingUniverse:
		return "resolving_universe"
	case StateFetchingBatches:
		return "fetching_batches"
	case StateMerging:
		return "merging"
	case StateCached:
		return "cached"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int32(s))
	}
}

// UniverseResolver produces the ranked instruments of a run.
type UniverseResolver interface {
	Resolve(ctx context.Context) ([]domain.Instrument, error)
}

// SeriesSource fetches the candle series of one symbol.
type SeriesSource interface {
	Fetch(ctx context.Context, symbol string) (domain.PriceSeries, error)
}

// OpenInterestProvider fetches best-effort open interest of one symbol.
type OpenInterestProvider interface {
	Fetch(ctx context.Context, symbol string) domain.OpenInterest
}

// RecordComputer turns the raw inputs of one instrument into a record.
type RecordComputer interface {
	Compute(inst domain.Instrument, series domain.PriceSeries, oi domain.OpenInterest, asOf time.Time) (*domain.InstrumentRecord, error)
}

// OrchestratorConfig holds the dependencies of an Orchestrator.
type OrchestratorConfig struct {
	Universe     UniverseResolver
	Series       SeriesSource
	OpenInterest OpenInterestProvider
	Engine       RecordComputer
	Cache        *cache.SnapshotCache
	Logger       ports.Logger

	Batch      fetcher.BatchConfig
	RunTimeout time.Duration // Upper bound of one run; 0 leaves only the caller's deadline
}

// Orchestrator runs the pipeline and serves its snapshots from cache.
type Orchestrator struct {
	universe UniverseResolver
	series   SeriesSource
	oi       OpenInterestProvider
	engine   RecordComputer
	cache    *cache.SnapshotCache
	logger   ports.Logger
	batch    fetcher.BatchConfig
	timeout  time.Duration
	now      func() time.Time

	group singleflight.Group
	state atomic.Int32
	runs  atomic.Int64
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Universe == nil || cfg.Series == nil || cfg.OpenInterest == nil || cfg.Engine == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Orchestrator: %w", ports.ErrConfigurationError)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.DefaultTTL)
	}
	if cfg.Batch.Size <= 0 {
		cfg.Batch.Size = fetcher.DefaultBatchSize
	}
	return &Orchestrator{
		universe: cfg.Universe,
		series:   cfg.Series,
		oi:       cfg.OpenInterest,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		batch:    cfg.Batch,
		timeout:  cfg.RunTimeout,
		now:      time.Now,
	}, nil
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	return RunState(o.state.Load())
}

// Runs returns how many pipeline executions have started.
func (o *Orchestrator) Runs() int64 {
	return o.runs.Load()
}

// CacheAge returns the age of the cached snapshot, or false when none exists.
func (o *Orchestrator) CacheAge() (time.Duration, bool) {
	return o.cache.Age()
}

// Latest returns the cached snapshot regardless of freshness without
// triggering a run. Nil when nothing has been computed yet.
func (o *Orchestrator) Latest() *domain.Snapshot {
	s, _ := o.cache.Load()
	return s
}

func (o *Orchestrator) setState(s RunState) {
	o.state.Store(int32(s))
}

// Snapshot returns the current record set. A fresh cache entry is returned
// without upstream calls. Otherwise one pipeline run is executed on behalf of
// all concurrent callers. A deadline hit mid-run yields the records merged so
// far with Partial set; such a snapshot is never served as fresh. When the run
// fails and an older entry exists, that entry is returned with Stale set. The
// returned snapshot must not be modified.
func (o *Orchestrator) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	if s, ok := o.cache.Fresh(); ok {
		return s, nil
	}

	snap, shared, err := o.sharedRun(ctx)
	if shared && ctx.Err() == nil && cutShort(snap, err) {
		// The shared run was bounded by another caller's context.
		o.logger.Debug(ctx, "Joined run was cut short, running again")
		snap, _, err = o.sharedRun(ctx)
	}
	if err == nil {
		return snap, nil
	}

	if stale, _ := o.cache.Load(); stale != nil {
		o.logger.Warn(ctx, "Pipeline refresh failed, serving stale snapshot", map[string]interface{}{
			"error":  err.Error(),
			"runId":  stale.RunID,
			"ageSec": int(stale.Age(o.now()).Seconds()),
		})
		c := *stale
		c.Stale = true
		return &c, nil
	}
	return nil, err
}

// sharedRun executes a run or joins the one in flight. Callers sharing a run
// wait for it; the run itself is bounded by the leading caller's deadline and
// RunTimeout.
func (o *Orchestrator) sharedRun(ctx context.Context) (*domain.Snapshot, bool, error) {
	v, err, shared := o.group.Do("snapshot", func() (interface{}, error) {
		// A run that finished between the freshness check and here already refreshed the cache.
		if s, ok := o.cache.Fresh(); ok {
			return s, nil
		}
		return o.run(ctx)
	})
	if err != nil {
		return nil, shared, err
	}
	if shared {
		o.logger.Debug(ctx, "Snapshot request joined an in-flight run")
	}
	return v.(*domain.Snapshot), shared, nil
}

// cutShort reports whether a run ended early because its context was done.
func cutShort(s *domain.Snapshot, err error) bool {
	if err != nil {
		return errors.Is(err, ports.ErrContextCanceled) || errors.Is(err, ports.ErrTimeout) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
	return s.Partial
}

// rateLimitCause returns a rate-limit error carrying the longest retry hint
// among errs, or nil when none of them is rate-limited.
func rateLimitCause(errs []error, cause error) error {
	var (
		limited bool
		wait    time.Duration
	)
	for _, err := range errs {
		if err == nil || !ports.IsRateLimited(err) {
			continue
		}
		limited = true
		if d, ok := ports.RetryAfter(err); ok && d > wait {
			wait = d
		}
	}
	if !limited {
		return nil
	}
	return &ports.RateLimitError{RetryAfter: wait, Err: cause}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
}

// run executes one pipeline pass and stores its result in the cache.
func (o *Orchestrator) run(ctx context.Context) (*domain.Snapshot, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	startedAt := o.now()
	o.runs.Add(1)
	fields := map[string]interface{}{"runId": runID}

	o.setState(StateResolvingUniverse)
	o.logger.Info(ctx, "Pipeline run started", fields)
	instruments, err := o.universe.Resolve(ctx)
	if err != nil {
		o.setState(StateFailed)
		o.logger.Error(ctx, err, "Pipeline run failed resolving universe", fields)
		return nil, err
	}

	o.setState(StateFetchingBatches)
	dropped := make([]error, len(instruments)) // Indexed like instruments; one writer per slot
	results, outcome := fetcher.RunBatches(ctx, o.batch, len(instruments), func(ctx context.Context, i int) (domain.InstrumentRecord, bool) {
		rec, err := o.process(ctx, runID, instruments[i], startedAt)
		if err != nil {
			dropped[i] = err
			return domain.InstrumentRecord{}, false
		}
		return rec, true
	})

	o.setState(StateMerging)
	records := merge(results)
	partial := outcome.Partial()

	if len(records) == 0 {
		o.setState(StateFailed)
		err := fmt.Errorf("run %s over %d instruments: %w", runID, len(instruments), ports.ErrEmptySnapshot)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, contextError(ctx.Err()))
		}
		if rl := rateLimitCause(dropped, err); rl != nil {
			err = rl
		}
		o.logger.Error(ctx, err, "Pipeline run produced no records", fields)
		return nil, err
	}

	snap := &domain.Snapshot{
		Records:    records,
		ComputedAt: startedAt,
		RunID:      runID,
		Partial:    partial,
	}
	o.cache.Store(snap)
	o.setState(StateCached)

	o.logger.Info(ctx, "Pipeline run completed", map[string]interface{}{
		"runId":       runID,
		"instruments": len(instruments),
		"records":     len(records),
		"dropped":     len(instruments) - len(records),
		"partial":     partial,
		"batches":     fmt.Sprintf("%d/%d", outcome.Completed, outcome.Batches),
		"durationMs":  o.now().Sub(startedAt).Milliseconds(),
	})
	return snap, nil
}

// process fetches and computes one instrument. An error drops the instrument.
func (o *Orchestrator) process(ctx context.Context, runID string, inst domain.Instrument, asOf time.Time) (domain.InstrumentRecord, error) {
	var (
		wg        sync.WaitGroup
		series    domain.PriceSeries
		seriesErr error
		oi        domain.OpenInterest
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		series, seriesErr = o.series.Fetch(ctx, inst.Symbol)
	}()
	go func() {
		defer wg.Done()
		oi = o.oi.Fetch(ctx, inst.Symbol)
	}()
	wg.Wait()

	if seriesErr != nil {
		o.logger.Debug(ctx, "Dropping instrument: series unavailable", map[string]interface{}{
			"runId":  runID,
			"symbol": inst.Symbol,
			"error":  seriesErr.Error(),
		})
		return domain.InstrumentRecord{}, seriesErr
	}

	rec, err := o.engine.Compute(inst, series, oi, asOf)
	if err != nil {
		o.logger.Debug(ctx, "Dropping instrument: failed validity gate", map[string]interface{}{
			"runId":  runID,
			"symbol": inst.Symbol,
			"error":  err.Error(),
		})
		return domain.InstrumentRecord{}, err
	}
	return *rec, nil
}

// merge collects successful records, drops duplicate symbols and orders the
// set by descending volume. The sort is stable so equal volumes keep rank order.
func merge(results []fetcher.Result[domain.InstrumentRecord]) []domain.InstrumentRecord {
	seen := make(map[string]struct{}, len(results))
	records := make([]domain.InstrumentRecord, 0, len(results))
	for _, r := range results {
		if !r.OK {
			continue
		}
		if _, dup := seen[r.Value.Symbol]; dup {
			continue
		}
		seen[r.Value.Symbol] = struct{}{}
		records = append(records, r.Value)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Volume > records[j].Volume
	})
	return records
}
