package feed

import (
	"net/url"
	"strings"
	"time"

	"feedpipe/internal/domain"

	"github.com/mmcdole/gofeed"
)

const (
	untitledPlaceholder = "Untitled"
	unknownAuthor       = "Unknown"
)

// normalizeItems converts parsed entries into candidate items in document order.
// Entries without a link are dropped and counted.
func normalizeItems(
	feedURL *url.URL,
	entries []*gofeed.Item,
	fetchedAt time.Time,
) ([]domain.Item, int) {
	items := make([]domain.Item, 0, len(entries))
	dropped := 0

	for _, entry := range entries {
		item, ok := normalizeItem(feedURL, entry, fetchedAt)
		if !ok {
			dropped++
			continue
		}

		items = append(items, item)
	}

	return items, dropped
}

func normalizeItem(feedURL *url.URL, entry *gofeed.Item, fetchedAt time.Time) (domain.Item, bool) {
	if entry == nil {
		return domain.Item{}, false
	}

	link := resolveLink(feedURL, entry.Link)
	if link == "" {
		return domain.Item{}, false
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = untitledPlaceholder
	}

	published := fetchedAt
	if entry.PublishedParsed != nil && !entry.PublishedParsed.IsZero() {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil && !entry.UpdatedParsed.IsZero() {
		published = entry.UpdatedParsed.UTC()
	}

	excerpt := entry.Description
	if strings.TrimSpace(excerpt) == "" {
		excerpt = entry.Content
	}

	return domain.Item{
		Title:     title,
		Link:      link,
		Published: published,
		Author:    itemAuthor(entry),
		Excerpt:   htmlToText(excerpt),
	}, true
}

// itemAuthor falls back through dc:creator, the item author and the author list.
func itemAuthor(entry *gofeed.Item) string {
	if entry.DublinCoreExt != nil {
		for _, creator := range entry.DublinCoreExt.Creator {
			if creator = strings.TrimSpace(creator); creator != "" {
				return creator
			}
		}
	}

	if name := personName(entry.Author); name != "" {
		return name
	}

	for _, author := range entry.Authors {
		if name := personName(author); name != "" {
			return name
		}
	}

	return unknownAuthor
}

func personName(p *gofeed.Person) string {
	if p == nil {
		return ""
	}

	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}

	return strings.TrimSpace(p.Email)
}
