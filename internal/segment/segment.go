// Package segment slices a normalized waveform into fixed-length,
// contiguous, time-ordered chunks.
package segment

import (
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/media"
)

// DefaultChunkDuration is the nominal chunk length.
const DefaultChunkDuration = 45 * time.Second

// AudioChunk is one slice of the source waveform. Samples is an independent
// copy, so the waveform it came from can be dropped after Split.
type AudioChunk struct {
	Samples *beep.Buffer
	Index   int // 1-based
	Start   float64
	End     float64
}

// Duration returns End - Start.
func (c AudioChunk) Duration() time.Duration {
	return time.Duration((c.End - c.Start) * float64(time.Second))
}

func (c AudioChunk) String() string {
	return fmt.Sprintf("chunk %d [%.1fs-%.1fs]", c.Index, c.Start, c.End)
}

// WriteWAV encodes the chunk as a WAV stream. At most window worth of samples
// is written when window > 0; the written duration is returned.
func (c AudioChunk) WriteWAV(w io.WriteSeeker, window time.Duration) (time.Duration, error) {
	if c.Samples == nil {
		return 0, errors.Errorf("chunk %d has no samples", c.Index)
	}
	format := c.Samples.Format()
	n := c.Samples.Len()
	if window > 0 {
		n = min(n, format.SampleRate.N(window))
	}
	if err := wav.Encode(w, c.Samples.Streamer(0, n), format); err != nil {
		return 0, errors.Wrapf(err, "encode chunk %d", c.Index)
	}
	return format.SampleRate.D(n), nil
}

// Split walks w in non-overlapping windows of d. The last chunk is truncated
// to what remains and is never empty.
func Split(w *media.Waveform, d time.Duration) ([]AudioChunk, error) {
	if w == nil || w.Samples == nil {
		return nil, &media.SegmentationError{Err: errors.New("no waveform")}
	}
	if d <= 0 {
		return nil, errors.Errorf("chunk duration must be positive, got %s", d)
	}
	format := w.Format()
	step := format.SampleRate.N(d)
	if step <= 0 {
		return nil, errors.Errorf("chunk duration %s is shorter than one sample at %d Hz", d, format.SampleRate)
	}

	total := w.Len()
	chunks := make([]AudioChunk, 0, (total+step-1)/step)
	for start := 0; start < total; start += step {
		end := min(start+step, total)
		samples := beep.NewBuffer(format)
		samples.Append(w.Samples.Streamer(start, end))
		chunks = append(chunks, AudioChunk{
			Samples: samples,
			Index:   len(chunks) + 1,
			Start:   format.SampleRate.D(start).Seconds(),
			End:     format.SampleRate.D(end).Seconds(),
		})
	}
	return chunks, nil
}
