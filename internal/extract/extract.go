// Package extract pulls fenced code blocks out of free-form model output.
package extract

import (
	"regexp"
	"strings"
)

const fence = "```"

// CorrectedCodeMarker precedes the corrected artifact in repair responses.
const CorrectedCodeMarker = "### Corrected Code"

type state int

const (
	seekMarker state = iota
	seekFence
)

// Extractor finds fenced blocks tagged with Language. When AfterMarker is
// set the search starts after its first occurrence, and an absent marker
// yields nothing.
type Extractor struct {
	Language    string
	AfterMarker string

	re *regexp.Regexp
}

// New compiles an extractor for the given language tag.
func New(language, afterMarker string) *Extractor {
	return &Extractor{
		Language:    language,
		AfterMarker: afterMarker,
		re:          fenceRegexp(language),
	}
}

// fenceRegexp matches ```<tag> case-insensitively and captures, non-greedily,
// at least one character up to the next ```.
func fenceRegexp(language string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(fence+language) + `([\s\S]+?)` + regexp.QuoteMeta(fence))
}

// Extract returns the inner text of every matching block in order of
// appearance. Fence markers are not included.
func (x *Extractor) Extract(text string) []string {
	if x.re == nil {
		x.re = fenceRegexp(x.Language)
	}
	st := seekFence
	if x.AfterMarker != "" {
		st = seekMarker
	}
	for {
		switch st {
		case seekMarker:
			rest, ok := After(text, x.AfterMarker)
			if !ok {
				return nil
			}
			text = rest
			st = seekFence
		case seekFence:
			return x.blocks(text)
		}
	}
}

// First returns the first matching block.
func (x *Extractor) First(text string) (string, bool) {
	blocks := x.Extract(text)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0], true
}

func (x *Extractor) blocks(text string) []string {
	matches := x.re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m[1]
	}
	return out
}

// After returns the text following the first occurrence of marker.
func After(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	return text[i+len(marker):], true
}

// Extract is a one-shot helper around New(languageTag, afterMarker).Extract.
func Extract(text, languageTag, afterMarker string) []string {
	return New(languageTag, afterMarker).Extract(text)
}
