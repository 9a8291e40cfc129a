package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"feedpipe/internal/domain"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}

	return &models.Message{ID: len(f.params)}, nil
}

func failedOutcomes(n int) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, n)
	for i := range n {
		outcomes = append(outcomes, domain.Outcome{
			FeedID:  fmt.Sprintf("f%d", i),
			FeedURL: fmt.Sprintf("https://example.com/%d.xml", i),
			Err:     fmt.Errorf("%w: unexpected status 502", domain.ErrFetch),
		})
	}

	return outcomes
}

func TestFormatReport(t *testing.T) {
	outcomes := []domain.Outcome{
		{FeedID: "a", FeedURL: "https://a.example/feed", Stored: 4},
		{FeedID: "b", FeedURL: "https://b.example/rss_1", Err: fmt.Errorf("%w: XML syntax error", domain.ErrParse)},
	}

	text, ok := FormatReport(outcomes)
	require.True(t, ok)

	lines := strings.Split(text, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "*Feed ingestion failures*", lines[0])
	assert.Equal(t, `1 of 2 feeds failed, 4 articles stored\.`, lines[1])
	assert.Empty(t, lines[2])
	assert.Equal(t, "• `https://b.example/rss_1` parse\\_error: parse feed: XML syntax error", lines[3])
}

func TestFormatReportNothingFailed(t *testing.T) {
	_, ok := FormatReport([]domain.Outcome{{FeedID: "a"}})
	assert.False(t, ok)

	_, ok = FormatReport(nil)
	assert.False(t, ok)
}

func TestFormatReportCapsLines(t *testing.T) {
	text, ok := FormatReport(failedOutcomes(maxReportLines + 5))
	require.True(t, ok)

	assert.Equal(t, maxReportLines, strings.Count(text, "fetch\\_error"))
	assert.True(t, strings.HasSuffix(text, `…and 5 more\.`))
}

func TestReportBatch(t *testing.T) {
	sender := &fakeSender{}
	n := NewWithSender(sender, 42, slog.New(slog.DiscardHandler))

	n.ReportBatch(context.Background(), []domain.Outcome{{FeedID: "ok"}})
	assert.Empty(t, sender.params, "successful batches are not reported")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.ReportBatch(ctx, failedOutcomes(2))
	require.Len(t, sender.params, 1, "reports are sent even after shutdown starts")
	assert.Equal(t, int64(42), sender.params[0].ChatID)
	assert.Equal(t, models.ParseModeMarkdown, sender.params[0].ParseMode)
	assert.Contains(t, sender.params[0].Text, "2 of 2 feeds failed")
}

func TestReportBatchSendFailureIsLogged(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram is down")}
	n := NewWithSender(sender, 42, slog.New(slog.DiscardHandler))

	assert.NotPanics(t, func() {
		n.ReportBatch(context.Background(), failedOutcomes(1))
	})
	assert.Len(t, sender.params, 1)
}

func TestNewSendsThroughTelegramAPI(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)

		mu.Lock()
		paths = append(paths, r.URL.Path)
		body = string(data)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	}))
	t.Cleanup(srv.Close)

	n, err := New("123456:test-token", 42, slog.New(slog.DiscardHandler), bot.WithServerURL(srv.URL))
	require.NoError(t, err)
	t.Cleanup(n.Close)

	n.ReportBatch(context.Background(), failedOutcomes(1))

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, paths, 1)
	assert.Equal(t, "/bot123456:test-token/sendMessage", paths[0])
	assert.Contains(t, body, "Feed ingestion failures")
	assert.Contains(t, body, "42")
}

func TestNewRejectsEmptyToken(t *testing.T) {
	_, err := New("  ", 42, slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
