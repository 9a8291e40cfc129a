package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"feedpipe/internal/domain"
	"feedpipe/internal/scheduler"
)

type Store interface {
	scheduler.FeedSource
	GetArticlesByFeeds(ctx context.Context, feedIDs []string) ([]domain.Article, error)
	MarkArticleRead(ctx context.Context, articleID, userID string) (*domain.Article, error)
	ToggleArticleFavorite(ctx context.Context, articleID string) (*domain.Article, error)
}

type BatchRunner interface {
	RunBatch(ctx context.Context, feeds []domain.Feed) ([]domain.Outcome, error)
}

// Service is the operation surface shared by the scheduler and the CLI.
type Service struct {
	store  Store
	runner BatchRunner
	log    *slog.Logger
}

func New(store Store, runner BatchRunner, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		runner: runner,
		log:    log,
	}
}

// TriggerIngestion runs one batch over every feed of the tier.
func (s *Service) TriggerIngestion(ctx context.Context, tier domain.Frequency) ([]domain.Outcome, error) {
	feeds, err := scheduler.FeedsForTier(ctx, s.store, tier)
	if err != nil {
		return nil, fmt.Errorf("load feeds for tier: %w", err)
	}

	s.log.InfoContext(ctx, "Ingestion is triggered",
		"tier", tier,
		"feedCount", len(feeds))

	outcomes, err := s.runner.RunBatch(ctx, feeds)
	if err != nil {
		return outcomes, fmt.Errorf("run batch (tier = %s): %w", tier, err)
	}

	return outcomes, nil
}

func (s *Service) GetArticlesByFeeds(ctx context.Context, feedIDs []string) ([]domain.Article, error) {
	articles, err := s.store.GetArticlesByFeeds(ctx, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("get articles by feeds: %w", err)
	}

	return articles, nil
}

// MarkArticleRead is idempotent per user.
func (s *Service) MarkArticleRead(ctx context.Context, articleID, userID string) (*domain.Article, error) {
	articleID = strings.TrimSpace(articleID)
	userID = strings.TrimSpace(userID)

	if articleID == "" {
		return nil, fmt.Errorf("%w: article ID is empty", domain.ErrInvalidInput)
	}

	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is empty", domain.ErrInvalidInput)
	}

	article, err := s.store.MarkArticleRead(ctx, articleID, userID)
	if err != nil {
		return nil, fmt.Errorf("mark article read (articleID = %s): %w", articleID, err)
	}

	return article, nil
}

// ToggleFavorite flips the article's favorite flag, which is shared by all users.
func (s *Service) ToggleFavorite(ctx context.Context, articleID string) (*domain.Article, error) {
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return nil, fmt.Errorf("%w: article ID is empty", domain.ErrInvalidInput)
	}

	article, err := s.store.ToggleArticleFavorite(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("toggle article favorite (articleID = %s): %w", articleID, err)
	}

	return article, nil
}
