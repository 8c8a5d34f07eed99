package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/zudsniper/audio2text/internal/transcribe"
)

// DefaultTitle is used when neither the caller nor the source tags name the
// recording.
const DefaultTitle = "Audio Transcription"

type Metadata struct {
	Title     string
	Source    string
	Language  string
	Backend   string
	Generated time.Time
}

func (m Metadata) title() string {
	if m.Title != "" {
		return m.Title
	}
	return DefaultTitle
}

// RenderMarkdown renders the transcript followed by one timestamped line per
// recognized chunk.
func RenderMarkdown(meta Metadata, tr *transcribe.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.title())
	if meta.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", meta.Source)
	}
	lang := meta.Language
	if lang == "" {
		lang = tr.Language
	}
	if lang != "" {
		if name, ok := transcribe.LanguageName(lang); ok {
			fmt.Fprintf(&b, "- Language: %s (`%s`)\n", name, lang)
		} else {
			fmt.Fprintf(&b, "- Language: `%s`\n", lang)
		}
	}
	if meta.Backend != "" {
		fmt.Fprintf(&b, "- Backend: `%s`\n", meta.Backend)
	}
	if !meta.Generated.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated.Format(time.RFC3339))
	}
	if tr.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", tr.Duration.Truncate(time.Second))
	}
	b.WriteString("\n---\n\n")

	if tr.Text == "" {
		b.WriteString("_No speech was recognized._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s\n", tr.Text)

	if len(tr.Segments) > 0 {
		b.WriteString("\n## Chunks\n\n")
		for _, s := range tr.Segments {
			fmt.Fprintf(&b, "- [%s-%s] %s\n", secToTS(s.StartSec), secToTS(s.EndSec), strings.TrimSpace(s.Text))
		}
	}
	return b.String()
}

func secToTS(sec float64) string {
	d := time.Duration(sec*1000) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
