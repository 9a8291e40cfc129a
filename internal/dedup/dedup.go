package dedup

import (
	"context"
	"fmt"

	"feedpipe/internal/domain"
)

type LinkSource interface {
	ExistingLinks(ctx context.Context, feedID string) (map[string]struct{}, error)
}

// Index filters candidate items down to links the store has not seen for a feed.
// It is an optimisation only: the store's unique (feed, link) constraint stays authoritative.
type Index struct {
	links LinkSource
}

func New(links LinkSource) *Index {
	return &Index{links: links}
}

// FilterNew does one link lookup per call and keeps the first occurrence of a link
// within candidates, preserving document order.
func (i *Index) FilterNew(
	ctx context.Context,
	feedID string,
	candidates []domain.Item,
) ([]domain.Item, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := i.links.ExistingLinks(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("load existing links (feedID = %s): %w", feedID, err)
	}

	fresh := make([]domain.Item, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, item := range candidates {
		if _, ok := existing[item.Link]; ok {
			continue
		}

		if _, ok := seen[item.Link]; ok {
			continue
		}

		seen[item.Link] = struct{}{}
		fresh = append(fresh, item)
	}

	return fresh, nil
}
