package domain

import "errors"

var (
	// ErrFetch means the feed URL could not be reached or answered with a non-2xx status.
	ErrFetch = errors.New("fetch feed")
	// ErrParse means the fetched document is not a valid RSS, Atom or JSON feed.
	ErrParse = errors.New("parse feed")
	// ErrDuplicateIgnored is informational: another run already stored the same link.
	ErrDuplicateIgnored = errors.New("duplicate article ignored")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage")
	ErrInvalidInput     = errors.New("invalid input")
)
