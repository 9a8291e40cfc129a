package markdown

import "strings"

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const (
	mdV2SpecialChars   = `\_*[]()~>#+-=|{}.!` + "`"
	mdV2CodeSpecialChs = `\` + "`"
)

var (
	textEscaper = newEscaper(mdV2SpecialChars)
	codeEscaper = newEscaper(mdV2CodeSpecialChs)
)

func newEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(chars))
	for _, c := range chars {
		pairs = append(pairs, string(c), `\`+string(c))
	}

	return strings.NewReplacer(pairs...)
}

// EscapeV2 escapes plain text for a MarkdownV2 message.
func EscapeV2(input string) string {
	return textEscaper.Replace(input)
}

func Bold(input string) string {
	return "*" + EscapeV2(input) + "*"
}

// Code wraps input in an inline code span, where only ` and \ need escaping.
func Code(input string) string {
	return "`" + codeEscaper.Replace(input) + "`"
}

// Truncate cuts input to at most limit runes and marks the cut with an ellipsis.
func Truncate(input string, limit int) string {
	runes := []rune(input)
	if limit <= 0 || len(runes) <= limit {
		return input
	}

	if limit == 1 {
		return "…"
	}

	return string(runes[:limit-1]) + "…"
}
