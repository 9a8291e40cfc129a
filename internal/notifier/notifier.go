package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedpipe/internal/domain"
	"feedpipe/internal/markdown"
	"feedpipe/internal/ratelimiter"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	sendTimeout     = 15 * time.Second
	maxReportLines  = 20
	maxReasonLength = 200
)

type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier sends a report of failed feeds to an operator chat after every batch
// that had failures.
type Notifier struct {
	sender  Sender
	limiter *ratelimiter.RateLimiter
	chatID  int64
	log     *slog.Logger
}

func New(token string, chatID int64, log *slog.Logger, opts ...bot.Option) (*Notifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", domain.ErrInvalidInput)
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	limiter := ratelimiter.New(b, log)

	n := NewWithSender(limiter, chatID, log)
	n.limiter = limiter

	return n, nil
}

func NewWithSender(sender Sender, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		log:    log,
	}
}

// Close stops the send queue created by New.
func (n *Notifier) Close() {
	if n.limiter != nil {
		n.limiter.Stop()
	}
}

// ReportBatch sends nothing when every feed succeeded. Send failures are logged only.
func (n *Notifier) ReportBatch(ctx context.Context, outcomes []domain.Outcome) {
	text, ok := FormatReport(outcomes)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if _, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	}); err != nil {
		n.log.ErrorContext(ctx, "Failed to send batch report",
			"error", err,
			"chatID", n.chatID,
			"outcomeCount", len(outcomes))
		return
	}

	n.log.InfoContext(ctx, "Batch report is sent",
		"chatID", n.chatID,
		"outcomeCount", len(outcomes))
}

// FormatReport renders failed outcomes as a MarkdownV2 message. It reports false when
// there is nothing to send.
func FormatReport(outcomes []domain.Outcome) (string, bool) {
	var failed []domain.Outcome
	stored := 0

	for _, outcome := range outcomes {
		stored += outcome.Stored
		if outcome.Failed() {
			failed = append(failed, outcome)
		}
	}

	if len(failed) == 0 {
		return "", false
	}

	var b strings.Builder

	b.WriteString(markdown.Bold("Feed ingestion failures"))
	b.WriteString("\n")
	b.WriteString(markdown.EscapeV2(fmt.Sprintf(
		"%d of %d feeds failed, %d articles stored.",
		len(failed),
		len(outcomes),
		stored,
	)))
	b.WriteString("\n\n")

	for i, outcome := range failed {
		if i == maxReportLines {
			b.WriteString(markdown.EscapeV2(fmt.Sprintf("…and %d more.", len(failed)-maxReportLines)))
			break
		}

		b.WriteString(markdown.EscapeV2("• "))
		b.WriteString(markdown.Code(outcome.FeedURL))
		b.WriteString(" ")
		b.WriteString(markdown.EscapeV2(outcome.Status() + ": " + markdown.Truncate(outcome.Reason(), maxReasonLength)))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n"), true
}
