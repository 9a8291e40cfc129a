package service_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"feedpipe/internal/database"
	"feedpipe/internal/dedup"
	"feedpipe/internal/domain"
	"feedpipe/internal/feed"
	"feedpipe/internal/ingest"
	"feedpipe/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedDocument = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Service</title>
    <item><title>One</title><link>https://example.com/1</link><pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate></item>
    <item><title>Two</title><link>https://example.com/2</link><pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate></item>
    <item><title>Three</title><link>https://example.com/3</link><pubDate>Wed, 04 Mar 2026 10:00:00 GMT</pubDate></item>
  </channel>
</rss>`

type fixture struct {
	db  *database.Database
	svc *service.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.DiscardHandler)

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "service.sqlite"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orchestrator := ingest.New(
		feed.NewFetcher(feed.Options{Timeout: 5 * time.Second}, log),
		dedup.New(db),
		db,
		ingest.Options{},
		log,
	)

	return &fixture{db: db, svc: service.New(db, orchestrator, log)}
}

func (f *fixture) addFeed(t *testing.T, frequency domain.Frequency, body string) domain.Feed {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	added, err := f.db.AddFeed(context.Background(), domain.Feed{
		URL:       srv.URL,
		Frequency: frequency,
		UserID:    "owner",
	})
	require.NoError(t, err)

	return *added
}

func (f *fixture) ingestOne(t *testing.T) (domain.Feed, domain.Article) {
	t.Helper()

	added := f.addFeed(t, domain.FrequencyHourly, feedDocument)

	_, err := f.svc.TriggerIngestion(context.Background(), domain.FrequencyHourly)
	require.NoError(t, err)

	articles, err := f.svc.GetArticlesByFeeds(context.Background(), []string{added.ID})
	require.NoError(t, err)
	require.NotEmpty(t, articles)

	return added, articles[0]
}

func TestTriggerIngestionTwiceKeepsThreeArticles(t *testing.T) {
	f := newFixture(t)
	hourly := f.addFeed(t, domain.FrequencyHourly, feedDocument)
	daily := f.addFeed(t, domain.FrequencyDaily, feedDocument)
	ctx := context.Background()

	outcomes, err := f.svc.TriggerIngestion(ctx, domain.FrequencyHourly)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, hourly.ID, outcomes[0].FeedID)
	assert.Equal(t, 3, outcomes[0].Stored)

	first, err := f.svc.GetArticlesByFeeds(ctx, []string{hourly.ID})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "Three", first[0].Title, "newest first")

	outcomes, err = f.svc.TriggerIngestion(ctx, domain.FrequencyHourly)
	require.NoError(t, err)
	assert.Equal(t, 0, outcomes[0].Stored)

	second, err := f.svc.GetArticlesByFeeds(ctx, []string{hourly.ID})
	require.NoError(t, err)
	require.Len(t, second, 3)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	other, err := f.svc.GetArticlesByFeeds(ctx, []string{daily.ID})
	require.NoError(t, err)
	assert.Empty(t, other, "other tiers are not ingested")
}

func TestTriggerIngestionRejectsUnknownTier(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TriggerIngestion(context.Background(), "MONTHLY")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTriggerIngestionWithoutFeeds(t *testing.T) {
	f := newFixture(t)

	outcomes, err := f.svc.TriggerIngestion(context.Background(), domain.FrequencyWeekly)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestMarkArticleReadTwice(t *testing.T) {
	f := newFixture(t)
	_, article := f.ingestOne(t)
	ctx := context.Background()

	_, err := f.svc.MarkArticleRead(ctx, article.ID, "u1")
	require.NoError(t, err)

	updated, err := f.svc.MarkArticleRead(ctx, article.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, updated.ReadBy)
	assert.True(t, updated.IsReadBy("u1"))
	assert.False(t, updated.IsReadBy("u2"))
}

func TestMarkArticleReadErrors(t *testing.T) {
	f := newFixture(t)
	_, article := f.ingestOne(t)
	ctx := context.Background()

	_, err := f.svc.MarkArticleRead(ctx, article.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.MarkArticleRead(ctx, "", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.MarkArticleRead(ctx, "missing", "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToggleFavoriteTwice(t *testing.T) {
	f := newFixture(t)
	_, article := f.ingestOne(t)
	ctx := context.Background()

	toggled, err := f.svc.ToggleFavorite(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, !article.Favorite, toggled.Favorite)

	restored, err := f.svc.ToggleFavorite(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, article.Favorite, restored.Favorite)
}

func TestToggleFavoriteErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ToggleFavorite(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ToggleFavorite(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
