package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

// Format selects the export renderer.
type Format string

const (
	Markdown Format = "md"
	Text     Format = "txt"
)

// ParseFormat accepts "md", "markdown", "txt" or "text".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "md", "markdown":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	}
	return "", errors.Errorf("unknown output format %q (md|txt)", s)
}

// FormatForPath infers the format from the file extension, defaulting to
// Markdown.
func FormatForPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return Markdown
}

// RenderText lays the transcript out as a title, a generation line, a rule of
// underscores and the text.
func RenderText(meta Metadata, tr *transcribe.Transcript) string {
	generated := meta.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", meta.title())
	fmt.Fprintf(&b, "Generated on %s\n", generated.Format("02/01/2006 at 15:04"))
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("_", 50))
	fmt.Fprintf(&b, "%s\n", tr.Text)
	return b.String()
}

// Write renders tr in format and writes it to path.
func Write(path string, format Format, meta Metadata, tr *transcribe.Transcript) error {
	var body string
	switch format {
	case Markdown:
		body = RenderMarkdown(meta, tr)
	case Text:
		body = RenderText(meta, tr)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return errors.Wrap(err, "write transcript")
	}
	return nil
}

// TitleFor returns the source's embedded title, falling back to the file
// name without extension.
func TitleFor(source string) string {
	if tags, err := media.ReadTags(source); err == nil && strings.TrimSpace(tags.Title) != "" {
		return strings.TrimSpace(tags.Title)
	}
	return strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
}
