package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"feedpipe/internal/domain"

	"github.com/mmcdole/gofeed"
)

const (
	defaultFetchTimeout     = 30 * time.Second
	defaultMaxDocumentBytes = 10 << 20
	defaultUserAgent        = "feedpipe/1.0 (+RSS reader)"

	acceptHeader = "application/rss+xml, application/atom+xml, application/feed+json, " +
		"application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"
)

type Options struct {
	Timeout          time.Duration
	HostInterval     time.Duration
	MaxDocumentBytes int64
	UserAgent        string

	// CacheSize bounds the conditional request cache. Zero picks the default and a
	// negative value disables conditional requests.
	CacheSize int
}

// Fetcher downloads a feed document and turns it into normalized candidate items.
// It never retries: the next scheduled run is the retry.
type Fetcher struct {
	client    *http.Client
	libParser *gofeed.Parser
	limiter   *hostLimiter
	cache     *feedCache
	maxBytes  int64
	userAgent string
	now       func() time.Time
	log       *slog.Logger
}

func NewFetcher(opts Options, log *slog.Logger) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	maxBytes := opts.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxDocumentBytes
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		libParser: gofeed.NewParser(),
		limiter:   newHostLimiter(opts.HostInterval),
		cache:     newFeedCache(opts.CacheSize),
		maxBytes:  maxBytes,
		userAgent: userAgent,
		now:       time.Now,
		log:       log,
	}
}

// Fetch fails with domain.ErrFetch when the document cannot be retrieved and with
// domain.ErrParse when it is not a valid feed.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]domain.Item, error) {
	fetchedAt := f.now().UTC()

	u, err := validateFeedURL(feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}

	if err = f.limiter.wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("%w: wait for host %s: %w", domain.ErrFetch, u.Host, err)
	}

	doc, err := f.download(ctx, u.String(), fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}

	entries := doc.cached.entries
	if doc.notModified {
		f.log.DebugContext(ctx, "Feed is not modified",
			"feedURL", u.String(),
			"itemCount", len(entries))
	} else {
		parsed, parseErr := f.libParser.Parse(bytes.NewReader(doc.data))
		if parseErr != nil {
			return nil, fmt.Errorf("%w: URL %s: %w", domain.ErrParse, u.String(), parseErr)
		}

		entries = parsed.Items
		f.cache.set(u.String(), cachedFeed{
			etag:         doc.cached.etag,
			lastModified: doc.cached.lastModified,
			entries:      entries,
		}, fetchedAt)
	}

	items, dropped := normalizeItems(u, entries, fetchedAt)
	if dropped > 0 {
		f.log.DebugContext(ctx, "Skipping feed items with empty link",
			"feedURL", u.String(),
			"droppedCount", dropped,
			"itemCount", len(entries))
	}

	return items, nil
}

// document is either a fresh body with its validators or, on 304, the cached feed.
type document struct {
	data        []byte
	cached      cachedFeed
	notModified bool
}

func (f *Fetcher) download(ctx context.Context, feedURL string, now time.Time) (document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return document{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	cached, hasCached := f.cache.get(feedURL, now)
	if hasCached {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}

		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return document{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"feedURL", feedURL)
		}
	}()

	if resp.StatusCode == http.StatusNotModified && hasCached {
		return document{cached: cached, notModified: true}, nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return document{}, fmt.Errorf("unexpected status %d (URL = %s)", resp.StatusCode, feedURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return document{}, fmt.Errorf("read body: %w", err)
	}

	if int64(len(data)) > f.maxBytes {
		return document{}, fmt.Errorf("document exceeds %d bytes (URL = %s)", f.maxBytes, feedURL)
	}

	return document{
		data: data,
		cached: cachedFeed{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}
