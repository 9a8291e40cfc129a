package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyHourly Frequency = "HOURLY"
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// Frequencies lists every tier in scheduling order.
var Frequencies = []Frequency{FrequencyHourly, FrequencyDaily, FrequencyWeekly} //nolint:gochecknoglobals // Read-only.

func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, raw)
	}

	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// Interval is the fixed re-fetch period of the tier. Unknown tiers return 0.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

type Feed struct {
	ID          string
	URL         string
	Frequency   Frequency
	UserID      string
	Title       string
	Description string
	Tags        []string
}

// Item is a normalized candidate parsed from a feed document.
type Item struct {
	Title     string
	Link      string
	Published time.Time
	Author    string
	Excerpt   string
}

type Article struct {
	ID        string
	FeedID    string
	Link      string
	Title     string
	Published time.Time
	Author    string
	Excerpt   string
	ReadBy    []string
	Favorite  bool
	CreatedAt time.Time
}

func (a *Article) IsReadBy(userID string) bool {
	for _, id := range a.ReadBy {
		if id == userID {
			return true
		}
	}

	return false
}

// Outcome is the per-feed result of one batch run. Err is nil on success.
type Outcome struct {
	FeedID     string
	FeedURL    string
	Seen       int
	Stored     int
	Duplicates int
	Duration   time.Duration
	Err        error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Status classifies the outcome for metrics and reports.
func (o Outcome) Status() string {
	switch {
	case o.Err == nil:
		return "ok"
	case errors.Is(o.Err, ErrParse):
		return "parse_error"
	case errors.Is(o.Err, ErrFetch):
		return "fetch_error"
	case errors.Is(o.Err, ErrStorage):
		return "storage_error"
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}

	return o.Err.Error()
}
