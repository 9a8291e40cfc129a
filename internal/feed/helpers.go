package feed

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

var httpURLRe = mustHTTPURLRegexp()

func mustHTTPURLRegexp() *regexp.Regexp {
	re, err := xurls.StrictMatchingScheme(`https?://`)
	if err != nil {
		panic(fmt.Sprintf("compile http URL regexp: %v", err))
	}

	return re
}

// validateFeedURL accepts only a single absolute http(s) URL with nothing around it.
func validateFeedURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("feed URL is empty")
	}

	if httpURLRe.FindString(raw) != raw {
		return nil, fmt.Errorf("feed URL %q is not a single http(s) URL", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("feed URL %q is not an absolute http(s) URL", raw)
	}

	return u, nil
}

// resolveLink trims the item link and resolves it against the feed URL when relative.
func resolveLink(feedURL *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || feedURL == nil {
		return raw
	}

	return feedURL.ResolveReference(u).String()
}

// htmlToText strips markup and collapses whitespace.
func htmlToText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}

	return strings.Join(strings.Fields(text), " ")
}
