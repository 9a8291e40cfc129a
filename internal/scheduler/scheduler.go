package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedpipe/internal/domain"
	"feedpipe/internal/metrics"

	"github.com/robfig/cron/v3"
)

const (
	DefaultTickSpec       = "@every 1m"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0

	defaultRetryBackoff  = 5 * time.Second
	defaultRetryAttempts = 3
	defaultBatchTimeout  = 30 * time.Minute
	recordRunTimeout     = 10 * time.Second
)

type FeedSource interface {
	GetFeedsByFrequency(ctx context.Context, frequency domain.Frequency) ([]domain.Feed, error)
}

type RunStore interface {
	GetTierRuns(ctx context.Context) (map[domain.Frequency]time.Time, error)
	RecordTierRun(ctx context.Context, tier domain.Frequency, startedAt time.Time) error
}

type Ingester interface {
	TriggerIngestion(ctx context.Context, tier domain.Frequency) ([]domain.Outcome, error)
}

type Options struct {
	Spec          string
	RetryBackoff  time.Duration
	RetryAttempts int
	BatchTimeout  time.Duration
}

type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cron     *cron.Cron
	runs     RunStore
	ingester Ingester
	opts     Options
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	inFlight map[domain.Frequency]bool
	wg       sync.WaitGroup
}

func New(ctx context.Context, runs RunStore, ingester Ingester, opts Options, log *slog.Logger) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultTickSpec
	}

	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}

	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaultBatchTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		cron:     c,
		runs:     runs,
		ingester: ingester,
		opts:     opts,
		now:      time.Now,
		log:      log,
		inFlight: make(map[domain.Frequency]bool),
	}
}

// Start registers the tick and runs the first one right away.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.Spec, s.tick); err != nil {
		return fmt.Errorf("add tick func (spec = %s): %w", s.opts.Spec, err)
	}

	s.cron.Start()
	s.wg.Go(s.tick)

	return nil
}

// Stop stops ticking, cancels running batches and waits for them.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

// DueTiers returns the tiers whose interval has elapsed since their last recorded run.
// A tier without a recorded run is due, and so is a tier whose last run lies in the future
// after the clock stepped back.
func DueTiers(now time.Time, lastRuns map[domain.Frequency]time.Time) []domain.Frequency {
	var due []domain.Frequency

	for _, tier := range domain.Frequencies {
		last, ok := lastRuns[tier]
		if !ok || last.IsZero() || now.Before(last) || now.Sub(last) >= tier.Interval() {
			due = append(due, tier)
		}
	}

	return due
}

// FeedsForTier returns every registered feed of the tier without freshness filtering.
func FeedsForTier(ctx context.Context, feeds FeedSource, tier domain.Frequency) ([]domain.Feed, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", domain.ErrInvalidInput, tier)
	}

	result, err := feeds.GetFeedsByFrequency(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("get feeds by frequency (tier = %s): %w", tier, err)
	}

	return result, nil
}

func (s *Scheduler) tick() {
	select {
	case <-s.ctx.Done():
		s.log.InfoContext(s.ctx, "Scheduler context is done",
			"error", s.ctx.Err())
		return
	default:
	}

	lastRuns, err := s.loadTierRuns()
	if err != nil {
		metrics.RecordSchedulerError("load_tier_runs")
		s.log.ErrorContext(s.ctx, "Failed to load tier runs",
			"error", err,
			"attempts", s.opts.RetryAttempts)
		return
	}

	now := s.now().UTC()

	for _, tier := range DueTiers(now, lastRuns) {
		if !s.claim(tier) {
			s.log.DebugContext(s.ctx, "Skipping tier with batch in flight",
				"tier", tier)
			continue
		}

		s.wg.Go(func() {
			defer s.release(tier)
			s.runTier(tier)
		})
	}
}

func (s *Scheduler) loadTierRuns() (map[domain.Frequency]time.Time, error) {
	var errs []error

	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		lastRuns, err := s.runs.GetTierRuns(s.ctx)
		if err == nil {
			return lastRuns, nil
		}
		errs = append(errs, err)

		if attempt == s.opts.RetryAttempts {
			break
		}

		s.log.WarnContext(s.ctx, "Retrying tier runs load",
			"error", err,
			"attempt", attempt,
			"backoff", s.opts.RetryBackoff.String())

		select {
		case <-s.ctx.Done():
			return nil, errors.Join(append(errs, s.ctx.Err())...)
		case <-time.After(s.opts.RetryBackoff):
		}
	}

	return nil, errors.Join(errs...)
}

func (s *Scheduler) runTier(tier domain.Frequency) {
	startedAt := s.now().UTC()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.BatchTimeout)
	defer cancel()

	outcomes, err := s.ingester.TriggerIngestion(ctx, tier)
	duration := time.Since(startedAt)

	if err != nil {
		metrics.RecordBatch(string(tier), duration.Seconds(), false, 0)
		metrics.RecordSchedulerError("run_batch")
		s.log.ErrorContext(ctx, "Failed to run tier batch",
			"error", err,
			"tier", tier,
			"feedCount", len(outcomes),
			"durationMs", duration.Milliseconds())
		return
	}

	recordCtx, recordCancel := context.WithTimeout(s.ctx, recordRunTimeout)
	defer recordCancel()

	if err = s.runs.RecordTierRun(recordCtx, tier, startedAt); err != nil {
		metrics.RecordSchedulerError("record_tier_run")
		s.log.ErrorContext(ctx, "Failed to record tier run",
			"error", err,
			"tier", tier,
			"startedAt", startedAt)
		return
	}

	metrics.RecordBatch(string(tier), duration.Seconds(), true, float64(startedAt.Unix()))

	stored, failed := summarize(outcomes)
	s.log.InfoContext(ctx, "Tier batch is done",
		"tier", tier,
		"feedCount", len(outcomes),
		"failedCount", failed,
		"storedCount", stored,
		"durationMs", duration.Milliseconds())
}

func (s *Scheduler) claim(tier domain.Frequency) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[tier] {
		return false
	}

	s.inFlight[tier] = true

	return true
}

func (s *Scheduler) release(tier domain.Frequency) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, tier)
}

func summarize(outcomes []domain.Outcome) (int, int) {
	stored, failed := 0, 0

	for _, outcome := range outcomes {
		stored += outcome.Stored
		if outcome.Failed() {
			failed++
		}
	}

	return stored, failed
}
