package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// DefaultSampleRate is the rate every input is resampled to before chunking.
const DefaultSampleRate = 44100

var (
	// ErrSourceNotFound is returned when the input path does not exist.
	ErrSourceNotFound = errors.New("source file not found")
	// ErrUnsupportedFormat is returned for extensions outside SupportedFormats.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// SupportedFormats lists the accepted input extensions.
var SupportedFormats = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg"}

// Supported reports whether ext, with its leading dot, is an accepted input
// extension. The comparison ignores case.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, f := range SupportedFormats {
		if ext == f {
			return true
		}
	}
	return false
}

// DecodeError reports a failed decoder run with whatever the decoder printed.
type DecodeError struct {
	Input  string
	Output string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s: %v", filepath.Base(e.Input), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLines(out, 5)
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CheckSource fails fast on a missing file or an unsupported extension.
func CheckSource(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(ErrSourceNotFound, path)
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	if fi.IsDir() {
		return errors.Wrapf(ErrSourceNotFound, "%s is a directory", path)
	}
	ext := filepath.Ext(path)
	if Supported(ext) {
		return nil
	}
	return errors.Wrapf(ErrUnsupportedFormat, "%q (want one of %s)", ext, strings.Join(SupportedFormats, ", "))
}

// Decoder turns an arbitrary audio file into a mono 16-bit PCM WAV at outputPath.
type Decoder interface {
	Decode(ctx context.Context, inputPath, outputPath string) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, inputPath, outputPath string) error

func (f DecoderFunc) Decode(ctx context.Context, inputPath, outputPath string) error {
	return f(ctx, inputPath, outputPath)
}

// FFmpeg runs the ffmpeg binary out of process.
type FFmpeg struct {
	Path       string // binary name or path; "ffmpeg" when empty
	SampleRate int
	Timeout    time.Duration // 0 lets ffmpeg run until it exits
}

// Decode runs: ffmpeg -y -i input -acodec pcm_s16le -ac 1 -ar RATE output
func (f FFmpeg) Decode(ctx context.Context, inputPath, outputPath string) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if _, err := exec.LookPath(bin); err != nil {
		return &DecodeError{Input: inputPath, Err: errors.Wrap(err, "ffmpeg unavailable")}
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-nostdin",
		"-y", "-i", inputPath,
		"-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "wav",
		outputPath,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &DecodeError{Input: inputPath, Output: stderr.String(), Err: err}
	}
	return nil
}

// Normalizer owns the transient WAV produced for one job.
type Normalizer struct {
	decoder Decoder
	tmpDir  string
	log     hclog.Logger
}

func NewNormalizer(decoder Decoder, tmpDir string, log hclog.Logger) *Normalizer {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Normalizer{decoder: decoder, tmpDir: tmpDir, log: log.Named("normalizer")}
}

// Normalize decodes inputPath into a new transient WAV and returns its path.
// The caller removes the file.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	f, err := os.CreateTemp(n.tmpDir, "a2t-"+sanitize(base)+"-*.wav")
	if err != nil {
		return "", errors.Wrap(err, "create transient wav")
	}
	out := f.Name()
	f.Close()

	n.log.Info("decoding", "input", inputPath, "output", out)
	if err := n.decoder.Decode(ctx, inputPath, out); err != nil {
		Remove(n.log, out)
		var de *DecodeError
		if !errors.As(err, &de) {
			err = &DecodeError{Input: inputPath, Err: err}
		}
		return "", err
	}
	return out, nil
}

// Remove deletes a transient file. Failures are logged only.
func Remove(log hclog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("remove transient file", "path", path, "error", err)
		return
	}
	log.Trace("removed transient file", "path", path)
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
