package media

import (
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"
)

// ErrEmptyAudio is returned for a decoded waveform with no samples.
var ErrEmptyAudio = errors.New("audio has zero duration")

// SegmentationError reports a normalized waveform that could not be read.
type SegmentationError struct {
	Path string
	Err  error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("read waveform %s: %v", e.Path, e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// Waveform is a fully decoded PCM signal held in memory.
type Waveform struct {
	Samples *beep.Buffer
}

// Format returns the sample format of the waveform.
func (w *Waveform) Format() beep.Format { return w.Samples.Format() }

// Len returns the number of samples.
func (w *Waveform) Len() int { return w.Samples.Len() }

// Duration returns the playback length.
func (w *Waveform) Duration() time.Duration {
	return w.Format().SampleRate.D(w.Len())
}

// LoadWaveform decodes a WAV file into memory. A readable file without
// samples yields ErrEmptyAudio; anything else unreadable a SegmentationError.
func LoadWaveform(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SegmentationError{Path: path, Err: err}
	}
	defer f.Close()

	stream, format, err := wav.Decode(f)
	if err != nil {
		return nil, &SegmentationError{Path: path, Err: err}
	}
	defer stream.Close()

	buf := beep.NewBuffer(format)
	buf.Append(stream)
	if err := stream.Err(); err != nil {
		return nil, &SegmentationError{Path: path, Err: err}
	}
	if buf.Len() == 0 {
		return nil, errors.Wrap(ErrEmptyAudio, path)
	}
	return &Waveform{Samples: buf}, nil
}
