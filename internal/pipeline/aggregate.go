package pipeline

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zudsniper/audio2text/internal/transcribe"
)

// Separator joins chunk texts in the final transcript.
const Separator = " "

// ChunkResult is one worker's output. Empty Text means the chunk failed or
// held no speech; it is dropped from the transcript, not treated as an error.
type ChunkResult struct {
	Index int
	Text  string
	Start float64
	End   float64
}

// Aggregator buffers results in completion order and restores chunk order
// when the transcript is built. Not safe for concurrent use.
type Aggregator struct {
	language string
	results  []ChunkResult
}

func NewAggregator(language string, expected int) *Aggregator {
	return &Aggregator{language: language, results: make([]ChunkResult, 0, expected)}
}

// Add records one result.
func (a *Aggregator) Add(r ChunkResult) { a.results = append(a.results, r) }

// Len returns the number of results received.
func (a *Aggregator) Len() int { return len(a.results) }

// Transcript sorts by index, drops empty texts, joins and formats.
func (a *Aggregator) Transcript() *transcribe.Transcript {
	sorted := append([]ChunkResult(nil), a.results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	tr := &transcribe.Transcript{Language: a.language}
	texts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.Text == "" {
			continue
		}
		texts = append(texts, r.Text)
		tr.Segments = append(tr.Segments, transcribe.Segment{Index: r.Index, StartSec: r.Start, EndSec: r.End, Text: r.Text})
	}
	tr.Text = FormatText(strings.Join(texts, Separator))
	return tr
}

// FormatText upper-cases the first letter, lower-cases the rest and ends the
// text with a period unless it already ends with '.', '!' or '?'.
func FormatText(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	s = string(unicode.ToTitle(first)) + strings.ToLower(s[size:])
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}
