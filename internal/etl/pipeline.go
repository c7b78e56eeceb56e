package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/salesetl/internal/metrics"
	"github.com/BartekS5/salesetl/pkg/models"
	"github.com/BartekS5/salesetl/pkg/utils"
)

// State is a run's position in the stage sequence.
type State string

const (
	StatePending     State = "PENDING"
	StateExtracting  State = "EXTRACTING"
	StateExtracted   State = "EXTRACTED"
	StateAggregating State = "AGGREGATING"
	StateAggregated  State = "AGGREGATED"
	StateLoading     State = "LOADING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Stage names used in attempts, metrics and errors.
const (
	StageExtract   = "extract"
	StageAggregate = "aggregate"
	StageLoad      = "load"
)

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// RunResult is everything a finished run knows about itself.
type RunResult struct {
	RunDate        time.Time
	State          State
	StartedAt      time.Time
	FinishedAt     time.Time
	History        []Transition
	Attempts       map[string]int
	OnlineOutcome  models.Outcome
	InStoreOutcome models.Outcome
	Aggregates     []models.ProductAggregate
	Stats          AggregationStats
	Load           LoadReport
	DryRun         bool
	Err            error
}

// Options tunes retries, timeouts and dry-run.
type Options struct {
	DryRun           bool
	StageRetries     int
	RetryBackoff     time.Duration
	ExtractTimeout   time.Duration
	AggregateTimeout time.Duration
	LoadTimeout      time.Duration
}

// Pipeline coordinates one run: both extractors in parallel, then the
// aggregator, then the loader. Each stage gets its own timeout and is
// retried up to StageRetries times; nothing is retried across stages.
type Pipeline struct {
	Online     Extractor
	InStore    Extractor
	Aggregator *Aggregator
	Loader     *Loader
	Opts       Options
	Metrics    *metrics.Collector
	// RunLog, when set, gets one entry per finished run.
	RunLog *RunLog

	logger zerolog.Logger
}

// NewPipeline wires a coordinator. The aggregator and metrics collector are
// created here; callers may replace them before Run.
func NewPipeline(online, inStore Extractor, loader *Loader, opts Options, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Online:     online,
		InStore:    inStore,
		Aggregator: NewAggregator(logger.With().Str("stage", StageAggregate).Logger()),
		Loader:     loader,
		Opts:       opts,
		Metrics:    metrics.NewCollector(),
		logger:     logger,
	}
}

// Run executes the pipeline for runDate. Cancelling ctx stops the run at
// the next stage boundary; a stage already in flight finishes first. The
// returned result is never nil; err is the terminal error when the run ends
// FAILED.
func (p *Pipeline) Run(ctx context.Context, runDate time.Time) (*RunResult, error) {
	res := &RunResult{
		RunDate:   runDate,
		State:     StatePending,
		StartedAt: time.Now(),
		Attempts:  make(map[string]int),
		DryRun:    p.Opts.DryRun,
	}
	log := p.logger.With().Str("run_date", runDate.Format(utils.DateLayout)).Logger()
	log.Info().Bool("dry_run", p.Opts.DryRun).Msg("starting run")

	var online, inStore *models.ExtractionBatch

	steps := []struct {
		stage   string
		running State
		done    State
		timeout time.Duration
		fn      func(ctx context.Context) error
	}{
		{StageExtract, StateExtracting, StateExtracted, p.Opts.ExtractTimeout, func(ctx context.Context) error {
			var err error
			online, inStore, err = p.extract(ctx, runDate)
			return err
		}},
		{StageAggregate, StateAggregating, StateAggregated, p.Opts.AggregateTimeout, func(ctx context.Context) error {
			aggs, stats, err := p.Aggregator.Aggregate(ctx, online, inStore)
			res.Aggregates, res.Stats = aggs, stats
			return err
		}},
		{StageLoad, StateLoading, StateDone, p.Opts.LoadTimeout, func(ctx context.Context) error {
			report, err := p.Loader.Load(ctx, res.Aggregates)
			res.Load = report
			return err
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return p.fail(log, res, fmt.Errorf("%w before %s stage: %w", ErrCancelled, step.stage, err))
		}

		if step.stage == StageLoad && p.Opts.DryRun {
			for _, agg := range res.Aggregates {
				log.Info().
					Int64("product_id", agg.ProductID).
					Int64("total_quantity", agg.TotalQuantity).
					Str("total_sale_amount", agg.TotalSaleAmount.StringFixed(2)).
					Msg("[DRY RUN] would upsert")
			}
			p.transition(log, res, StateDone)
			break
		}

		p.transition(log, res, step.running)
		if err := p.runStage(ctx, log, res, step.stage, step.timeout, step.fn); err != nil {
			return p.fail(log, res, err)
		}
		p.afterStage(log, res, step.stage, online, inStore)
		p.transition(log, res, step.done)
	}

	res.FinishedAt = time.Now()
	log.Info().Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).Int("products", len(res.Aggregates)).Msg("run finished")
	p.appendRunLog(log, res)
	return res, nil
}

func (p *Pipeline) extract(ctx context.Context, runDate time.Time) (online, inStore *models.ExtractionBatch, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := p.Online.Extract(gctx, runDate)
		online = b
		return err
	})
	g.Go(func() error {
		b, err := p.InStore.Extract(gctx, runDate)
		inStore = b
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return online, inStore, nil
}

// runStage runs fn under the stage timeout, retrying retryable failures.
// The stage context ignores the caller's cancellation so an in-flight stage
// is never cut short; cancellation is honoured between attempts.
func (p *Pipeline) runStage(ctx context.Context, log zerolog.Logger, res *RunResult, stage string, timeout time.Duration, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		res.Attempts[stage] = attempt

		stageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		start := time.Now()
		err := fn(stageCtx)
		timedOut := errors.Is(stageCtx.Err(), context.DeadlineExceeded)
		cancel()
		p.Metrics.TrackStageDuration(stage, time.Since(start))

		if err == nil {
			return nil
		}
		if timedOut {
			err = fmt.Errorf("%s stage timed out after %s: %w", stage, timeout, err)
		}

		if !retryable(err) || attempt > p.Opts.StageRetries {
			return &StageError{Stage: stage, Attempts: attempt, Err: err}
		}
		if ctx.Err() != nil {
			return &StageError{Stage: stage, Attempts: attempt, Err: fmt.Errorf("%w during %s retry: %w", ErrCancelled, stage, err)}
		}

		log.Warn().Err(err).Str("stage", stage).Int("attempt", attempt).Dur("backoff", p.Opts.RetryBackoff).Msg("stage failed, retrying")
		p.Metrics.RecordStageRetry()

		select {
		case <-time.After(p.Opts.RetryBackoff):
		case <-ctx.Done():
			return &StageError{Stage: stage, Attempts: attempt, Err: fmt.Errorf("%w during %s retry: %w", ErrCancelled, stage, err)}
		}
	}
}

func (p *Pipeline) afterStage(log zerolog.Logger, res *RunResult, stage string, online, inStore *models.ExtractionBatch) {
	switch stage {
	case StageExtract:
		for _, b := range []*models.ExtractionBatch{online, inStore} {
			p.Metrics.RecordExtracted(string(b.Source), len(b.Rows))
			if b.Outcome.IsFallback() {
				p.Metrics.RecordFallback()
				ev := log.Warn().Str("source", string(b.Source)).Str("outcome", string(b.Outcome)).Int("rows", len(b.Rows))
				if b.Reason != nil {
					ev = ev.AnErr("reason", b.Reason)
				}
				ev.Msg("lower-confidence batch: source was read without the date filter")
			}
		}
		res.OnlineOutcome, res.InStoreOutcome = online.Outcome, inStore.Outcome

	case StageAggregate:
		p.Metrics.RecordDropped(res.Stats.DroppedRows)
		p.Metrics.RecordNegative(res.Stats.NegativeRows)
		p.Metrics.RecordAggregates(len(res.Aggregates))

	case StageLoad:
		for i := 0; i < res.Load.Succeeded; i++ {
			p.Metrics.RecordUpsert(true)
		}
		for i := 0; i < res.Load.Failed; i++ {
			p.Metrics.RecordUpsert(false)
		}
		if res.Load.Failed > 0 {
			log.Warn().Int("failed", res.Load.Failed).Int("attempted", res.Load.Attempted).Msg("run completed with failed rows")
		}
	}
}

func (p *Pipeline) transition(log zerolog.Logger, res *RunResult, to State) {
	res.History = append(res.History, Transition{From: res.State, To: to, At: time.Now()})
	log.Debug().Str("from", string(res.State)).Str("to", string(to)).Msg("state transition")
	res.State = to
}

func (p *Pipeline) fail(log zerolog.Logger, res *RunResult, err error) (*RunResult, error) {
	p.transition(log, res, StateFailed)
	res.Err = err
	res.FinishedAt = time.Now()
	log.Error().Err(err).Msg("run failed")
	p.appendRunLog(log, res)
	return res, err
}

func (p *Pipeline) appendRunLog(log zerolog.Logger, res *RunResult) {
	if p.RunLog == nil {
		return
	}
	if err := p.RunLog.Append(res); err != nil {
		log.Error().Err(err).Msg("could not append to run log")
	}
}
