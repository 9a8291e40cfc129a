package feed

import (
	"net/url"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeItem(t *testing.T) {
	feedURL, err := url.Parse("https://example.com/blog/feed.xml")
	require.NoError(t, err)

	fetchedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	published := time.Date(2026, 5, 30, 9, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	updated := time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		entry         *gofeed.Item
		wantOK        bool
		wantTitle     string
		wantLink      string
		wantAuthor    string
		wantExcerpt   string
		wantPublished time.Time
	}{
		{
			name: "all fields present",
			entry: &gofeed.Item{
				Title:           "Post",
				Link:            "https://example.com/p/1",
				PublishedParsed: &published,
				Author:          &gofeed.Person{Name: "Jane"},
				Description:     "Plain excerpt",
			},
			wantOK:        true,
			wantTitle:     "Post",
			wantLink:      "https://example.com/p/1",
			wantAuthor:    "Jane",
			wantExcerpt:   "Plain excerpt",
			wantPublished: published.UTC(),
		},
		{
			name:          "defaults",
			entry:         &gofeed.Item{Title: "   ", Link: "https://example.com/p/2"},
			wantOK:        true,
			wantTitle:     "Untitled",
			wantLink:      "https://example.com/p/2",
			wantAuthor:    "Unknown",
			wantExcerpt:   "",
			wantPublished: fetchedAt,
		},
		{
			name: "creator wins over author",
			entry: &gofeed.Item{
				Link:          "https://example.com/p/3",
				Author:        &gofeed.Person{Name: "Jane"},
				DublinCoreExt: &ext.DublinCoreExtension{Creator: []string{" ", "Carl"}},
			},
			wantOK:        true,
			wantTitle:     "Untitled",
			wantLink:      "https://example.com/p/3",
			wantAuthor:    "Carl",
			wantPublished: fetchedAt,
		},
		{
			name: "authors list and updated date",
			entry: &gofeed.Item{
				Link:          "https://example.com/p/4",
				Authors:       []*gofeed.Person{{Email: "ops@example.com"}},
				UpdatedParsed: &updated,
				Content:       "<div>Body <em>only</em>\n\n in content</div>",
			},
			wantOK:        true,
			wantTitle:     "Untitled",
			wantLink:      "https://example.com/p/4",
			wantAuthor:    "ops@example.com",
			wantExcerpt:   "Body only in content",
			wantPublished: updated,
		},
		{
			name:          "relative link",
			entry:         &gofeed.Item{Link: "../p/5"},
			wantOK:        true,
			wantTitle:     "Untitled",
			wantLink:      "https://example.com/p/5",
			wantAuthor:    "Unknown",
			wantPublished: fetchedAt,
		},
		{
			name:          "fragment is kept",
			entry:         &gofeed.Item{Link: " https://example.com/p/6?ref=rss#comments "},
			wantOK:        true,
			wantTitle:     "Untitled",
			wantLink:      "https://example.com/p/6?ref=rss#comments",
			wantAuthor:    "Unknown",
			wantPublished: fetchedAt,
		},
		{
			name:   "empty link is dropped",
			entry:  &gofeed.Item{Title: "No link", Link: "  "},
			wantOK: false,
		},
		{
			name:   "nil entry is dropped",
			entry:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := normalizeItem(feedURL, tt.entry, fetchedAt)
			require.Equal(t, tt.wantOK, ok)

			if !tt.wantOK {
				return
			}

			assert.Equal(t, tt.wantTitle, item.Title)
			assert.Equal(t, tt.wantLink, item.Link)
			assert.Equal(t, tt.wantAuthor, item.Author)
			assert.Equal(t, tt.wantExcerpt, item.Excerpt)
			assert.True(t, tt.wantPublished.Equal(item.Published), "published %s", item.Published)
		})
	}
}

func TestNormalizeItemsKeepsDocumentOrder(t *testing.T) {
	entries := []*gofeed.Item{
		{Link: "https://example.com/b"},
		{Link: ""},
		{Link: "https://example.com/a"},
		{Link: "https://example.com/b"},
	}

	items, dropped := normalizeItems(nil, entries, time.Now())
	require.Len(t, items, 3)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "https://example.com/b", items[0].Link)
	assert.Equal(t, "https://example.com/a", items[1].Link)
	assert.Equal(t, "https://example.com/b", items[2].Link)
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"  plain   text ", "plain text"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"Fish &amp; chips", "Fish & chips"},
		{"<ul><li>one</li> <li>two</li></ul>", "one two"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, htmlToText(tt.raw), tt.raw)
	}
}
