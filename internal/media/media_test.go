package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSilence(t *testing.T, path string, rate, samples int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Silence(samples), format))
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestCheckSource(t *testing.T) {
	dir := t.TempDir()

	err := CheckSource(filepath.Join(dir, "missing.mp3"))
	assert.True(t, errors.Is(err, ErrSourceNotFound), "got %v", err)

	err = CheckSource(touch(t, dir, "notes.xyz"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

	err = CheckSource(dir)
	assert.True(t, errors.Is(err, ErrSourceNotFound))

	for _, ext := range []string{".wav", ".MP3", ".m4a", ".flac", ".ogg"} {
		assert.NoError(t, CheckSource(touch(t, dir, "talk"+ext)), ext)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".Ogg"))
	assert.False(t, Supported("ogg"), "the leading dot is required")
	assert.False(t, Supported(".docx"))
	assert.False(t, Supported(""))
}

func TestNormalizerProducesNewFile(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "talk.mp3")

	var gotIn, gotOut string
	dec := DecoderFunc(func(ctx context.Context, inputPath, outputPath string) error {
		gotIn, gotOut = inputPath, outputPath
		writeSilence(t, outputPath, 1000, 1000)
		return nil
	})

	out, err := NewNormalizer(dec, dir, hclog.NewNullLogger()).Normalize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, gotIn)
	assert.Equal(t, gotOut, out)
	assert.NotEqual(t, in, out)
	assert.FileExists(t, out)
}

func TestNormalizerDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "broken.ogg")

	var out string
	dec := DecoderFunc(func(ctx context.Context, inputPath, outputPath string) error {
		out = outputPath
		return &DecodeError{Input: inputPath, Output: "Invalid data found when processing input", Err: errors.New("exit status 1")}
	})

	_, err := NewNormalizer(dec, dir, nil).Normalize(context.Background(), in)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.NoFileExists(t, out, "transient file must be removed on failure")
}

func TestNormalizerWrapsPlainErrors(t *testing.T) {
	dir := t.TempDir()
	dec := DecoderFunc(func(context.Context, string, string) error { return errors.New("boom") })

	_, err := NewNormalizer(dec, dir, nil).Normalize(context.Background(), touch(t, dir, "a.wav"))
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestFFmpegMissingBinary(t *testing.T) {
	dir := t.TempDir()
	err := FFmpeg{Path: filepath.Join(dir, "no-such-ffmpeg")}.Decode(context.Background(), "in.mp3", filepath.Join(dir, "out.wav"))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "ffmpeg unavailable")
}

func TestLoadWaveform(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "ok.wav")
	writeSilence(t, p, 1000, 2500)

	w, err := LoadWaveform(p)
	require.NoError(t, err)
	assert.Equal(t, 2500, w.Len())
	assert.Equal(t, 2500*time.Millisecond, w.Duration())
	assert.Equal(t, 1, w.Format().NumChannels)
}

func TestLoadWaveformEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.wav")
	writeSilence(t, p, 1000, 0)

	// Depending on the decoder an empty data chunk is either read as zero
	// samples or refused outright; both must keep it out of segmentation.
	_, err := LoadWaveform(p)
	var se *SegmentationError
	assert.True(t, errors.Is(err, ErrEmptyAudio) || errors.As(err, &se), "got %v", err)
}

func TestLoadWaveformUnreadable(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "garbage.wav")

	_, err := LoadWaveform(p)
	var se *SegmentationError
	assert.True(t, errors.As(err, &se), "got %v", err)

	_, err = LoadWaveform(filepath.Join(dir, "missing.wav"))
	assert.True(t, errors.As(err, &se))
}
