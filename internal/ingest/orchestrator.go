package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedpipe/internal/domain"
	"feedpipe/internal/metrics"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrent = 8
	defaultFeedTimeout   = 2 * time.Minute
	defaultStoreTimeout  = 10 * time.Second
)

type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]domain.Item, error)
}

type Deduplicator interface {
	FilterNew(ctx context.Context, feedID string, candidates []domain.Item) ([]domain.Item, error)
}

type Store interface {
	InsertArticleIfAbsent(ctx context.Context, feedID string, item domain.Item) (*domain.Article, error)
}

// Reporter receives every finished batch. Implementations must not block for long.
type Reporter interface {
	ReportBatch(ctx context.Context, outcomes []domain.Outcome)
}

type Options struct {
	MaxConcurrent int
	FeedTimeout   time.Duration
	StoreTimeout  time.Duration
	Reporter      Reporter
}

type Orchestrator struct {
	fetcher       Fetcher
	dedup         Deduplicator
	store         Store
	reporter      Reporter
	maxConcurrent int
	feedTimeout   time.Duration
	storeTimeout  time.Duration
	log           *slog.Logger
}

func New(fetcher Fetcher, dedup Deduplicator, store Store, opts Options, log *slog.Logger) *Orchestrator {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	feedTimeout := opts.FeedTimeout
	if feedTimeout <= 0 {
		feedTimeout = defaultFeedTimeout
	}

	storeTimeout := opts.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	return &Orchestrator{
		fetcher:       fetcher,
		dedup:         dedup,
		store:         store,
		reporter:      opts.Reporter,
		maxConcurrent: maxConcurrent,
		feedTimeout:   feedTimeout,
		storeTimeout:  storeTimeout,
		log:           log,
	}
}

// RunBatch runs fetch, dedup and store for every feed and returns one outcome per feed in
// input order. Feeds sharing a URL share one download. Feed failures are recorded in their
// outcome. An error is returned only when the batch was cancelled or when the store failed
// for every feed that reached it.
func (o *Orchestrator) RunBatch(ctx context.Context, feeds []domain.Feed) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, len(feeds))
	if len(feeds) == 0 {
		return outcomes, nil
	}

	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)

	for _, group := range groupByURL(feeds) {
		if ctx.Err() != nil {
			for _, i := range group.indices {
				outcomes[i] = domain.Outcome{
					FeedID:  feeds[i].ID,
					FeedURL: feeds[i].URL,
					Err:     fmt.Errorf("skip feed: %w", ctx.Err()),
				}
			}

			continue
		}

		g.Go(func() error {
			o.runGroup(ctx, feeds, group, outcomes)

			return nil
		})
	}

	_ = g.Wait()

	if o.reporter != nil {
		o.reporter.ReportBatch(ctx, outcomes)
	}

	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("run batch: %w", err)
	}

	if storageIsDown(outcomes) {
		errs := make([]error, 0, len(outcomes))
		for _, outcome := range outcomes {
			if errors.Is(outcome.Err, domain.ErrStorage) {
				errs = append(errs, outcome.Err)
			}
		}

		return outcomes, fmt.Errorf("%w: store failed for every feed: %w", domain.ErrStorage, errors.Join(errs...))
	}

	return outcomes, nil
}

// urlGroup holds the positions of the batch feeds that point at one document.
type urlGroup struct {
	url     string
	indices []int
}

func groupByURL(feeds []domain.Feed) []urlGroup {
	groups := make([]urlGroup, 0, len(feeds))
	positions := make(map[string]int, len(feeds))

	for i, f := range feeds {
		key := strings.TrimSpace(f.URL)

		pos, ok := positions[key]
		if !ok {
			pos = len(groups)
			positions[key] = pos
			groups = append(groups, urlGroup{url: key})
		}

		groups[pos].indices = append(groups[pos].indices, i)
	}

	return groups
}

// runGroup downloads the document once and stores its items for each feed of the group.
func (o *Orchestrator) runGroup(ctx context.Context, feeds []domain.Feed, group urlGroup, outcomes []domain.Outcome) {
	start := time.Now()
	items, err := o.fetch(ctx, group.url)

	for _, i := range group.indices {
		outcomes[i] = o.runFeed(ctx, feeds[i], items, err, start)
		o.record(ctx, feeds[i], outcomes[i])
	}
}

func (o *Orchestrator) fetch(ctx context.Context, feedURL string) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, o.feedTimeout)
	defer cancel()

	return o.fetcher.Fetch(ctx, feedURL)
}

func (o *Orchestrator) runFeed(
	ctx context.Context,
	f domain.Feed,
	items []domain.Item,
	fetchErr error,
	start time.Time,
) domain.Outcome {
	outcome := domain.Outcome{FeedID: f.ID, FeedURL: f.URL}

	if fetchErr != nil {
		outcome.Err = fetchErr
		outcome.Duration = time.Since(start)

		return outcome
	}
	outcome.Seen = len(items)

	ctx, cancel := context.WithTimeout(ctx, o.feedTimeout)
	defer cancel()

	fresh, err := o.filterNew(ctx, f.ID, items)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)

		return outcome
	}

	for _, item := range fresh {
		err = o.insert(ctx, f.ID, item)

		switch {
		case err == nil:
			outcome.Stored++
		case errors.Is(err, domain.ErrDuplicateIgnored):
			outcome.Duplicates++
		default:
			outcome.Err = fmt.Errorf("insert article (link = %s): %w", item.Link, err)
			outcome.Duration = time.Since(start)

			return outcome
		}
	}

	outcome.Duration = time.Since(start)

	return outcome
}

func (o *Orchestrator) filterNew(ctx context.Context, feedID string, items []domain.Item) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	fresh, err := o.dedup.FilterNew(ctx, feedID, items)
	if err != nil {
		if !errors.Is(err, domain.ErrStorage) {
			err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}

		return nil, fmt.Errorf("filter new items: %w", err)
	}

	return fresh, nil
}

func (o *Orchestrator) insert(ctx context.Context, feedID string, item domain.Item) error {
	ctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	_, err := o.store.InsertArticleIfAbsent(ctx, feedID, item)
	if err != nil && !errors.Is(err, domain.ErrDuplicateIgnored) && !errors.Is(err, domain.ErrStorage) {
		err = fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	return err
}

func (o *Orchestrator) record(ctx context.Context, f domain.Feed, outcome domain.Outcome) {
	status := outcome.Status()
	metrics.RecordFeedRun(string(f.Frequency), status, outcome.Stored, outcome.Duplicates, outcome.Duration.Seconds())

	if outcome.Failed() {
		o.log.WarnContext(ctx, "Failed to ingest feed",
			"error", outcome.Err,
			"feedID", f.ID,
			"feedURL", f.URL,
			"tier", f.Frequency,
			"status", status,
			"seenCount", outcome.Seen,
			"storedCount", outcome.Stored,
			"durationMs", outcome.Duration.Milliseconds())

		return
	}

	o.log.InfoContext(ctx, "Feed is ingested",
		"feedID", f.ID,
		"feedURL", f.URL,
		"tier", f.Frequency,
		"seenCount", outcome.Seen,
		"storedCount", outcome.Stored,
		"duplicateCount", outcome.Duplicates,
		"durationMs", outcome.Duration.Milliseconds())
}

// storageIsDown reports whether at least one feed reached the store and the store failed
// for every feed that did. Fetch and parse failures never reach the store.
func storageIsDown(outcomes []domain.Outcome) bool {
	reached := 0

	for _, outcome := range outcomes {
		switch {
		case outcome.Err == nil:
			return false
		case errors.Is(outcome.Err, domain.ErrStorage):
			reached++
		}
	}

	return reached > 0
}
