package transcribe

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotUnderstood means the service answered but recognized no speech.
var ErrNotUnderstood = errors.New("audio not understood")

// RequestError wraps a transport or HTTP-level failure talking to a service.
type RequestError struct {
	Backend string
	Status  int
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s request failed (http %d): %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Backend, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Audio is one recognizable clip persisted as a mono PCM WAV file.
type Audio struct {
	Path     string
	Duration time.Duration
}

// Recognizer converts a clip into text for a language tag such as "fr-FR".
// It returns ErrNotUnderstood when no speech was found.
type Recognizer interface {
	Recognize(ctx context.Context, audio Audio, language string) (string, error)
}

// Factory builds a private Recognizer. Every worker owns the one it creates.
type Factory func() Recognizer

// Segment is the recognized text of one time range of the source.
type Segment struct {
	Index    int
	StartSec float64
	EndSec   float64
	Text     string
}

// Transcript is the assembled result of a job.
type Transcript struct {
	Language string
	Text     string
	Segments []Segment
	Duration time.Duration
}

var languageTag = regexp.MustCompile(`^[a-z]{2}-[A-Z]{2}$`)

// ValidLanguage reports whether tag looks like "xx-XX".
func ValidLanguage(tag string) bool { return languageTag.MatchString(tag) }

// Languages maps display names to the tags offered by default.
var Languages = map[string]string{
	"Français":     "fr-FR",
	"English (US)": "en-US",
	"English (UK)": "en-GB",
	"Deutsch":      "de-DE",
	"Español":      "es-ES",
	"Italiano":     "it-IT",
	"Nederlands":   "nl-NL",
	"Polski":       "pl-PL",
	"Português":    "pt-PT",
	"Русский":      "ru-RU",
	"日本語":          "ja-JP",
	"한국어":          "ko-KR",
	"中文":           "zh-CN",
}

// LanguageNames returns the catalogue names sorted by tag.
func LanguageNames() []string {
	names := make([]string, 0, len(Languages))
	for n := range Languages {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return Languages[names[i]] < Languages[names[j]] })
	return names
}

// LanguageName returns the catalogue name for tag.
func LanguageName(tag string) (string, bool) {
	for n, t := range Languages {
		if t == tag {
			return n, true
		}
	}
	return "", false
}

// baseLanguage turns "fr-FR" into "fr" for services that take ISO-639-1.
func baseLanguage(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}
