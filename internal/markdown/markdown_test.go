package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeV2(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"https://example.com/a_b.xml", `https://example\.com/a\_b\.xml`},
		{"fetch feed: unexpected status 404 (URL = x)", `fetch feed: unexpected status 404 \(URL \= x\)`},
		{`back\slash`, `back\\slash`},
		{"*[]~>#+-|{}!`", "\\*\\[\\]\\~\\>\\#\\+\\-\\|\\{\\}\\!\\`"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeV2(tt.input), tt.input)
	}
}

func TestBoldAndCode(t *testing.T) {
	assert.Equal(t, `*2 of 3 feeds\.*`, Bold("2 of 3 feeds."))
	assert.Equal(t, "`https://example.com/a_b`", Code("https://example.com/a_b"))
	assert.Equal(t, "`a\\`b`", Code("a`b"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "привe…", Truncate("привeт мир", 6))
	assert.Equal(t, "unchanged", Truncate("unchanged", 0))
}
