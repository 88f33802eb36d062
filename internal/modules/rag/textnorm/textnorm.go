package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxTokens     = 8191
	DefaultCharsPerToken = 3
	TruncationMarker     = "... [truncated]"
)

// Normalizer collapses whitespace and caps text at MaxChars runes.
type Normalizer struct {
	MaxChars int
	Marker   string
}

// New derives the character cap from the model's token ceiling.
func New(maxTokens, charsPerToken int) Normalizer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return Normalizer{MaxChars: maxTokens * charsPerToken, Marker: TruncationMarker}
}

func Default() Normalizer {
	return New(DefaultMaxTokens, DefaultCharsPerToken)
}

func (n Normalizer) Normalize(raw string) string {
	s := collapse(raw)
	if n.MaxChars <= 0 || utf8.RuneCountInString(s) <= n.MaxChars {
		return s
	}
	runes := []rune(s)
	marker := []rune(n.Marker)
	if len(marker) >= n.MaxChars {
		return string(runes[:n.MaxChars])
	}
	keep := strings.TrimRightFunc(string(runes[:n.MaxChars-len(marker)]), unicode.IsSpace)
	return keep + n.Marker
}

// Truncated reports whether s carries the truncation marker.
func (n Normalizer) Truncated(s string) bool {
	return n.Marker != "" && strings.HasSuffix(s, n.Marker)
}

func collapse(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.Join(strings.Fields(s), " ")
}
