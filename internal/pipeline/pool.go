package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/segment"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

// DefaultWorkers returns max(1, logical CPUs - 1).
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, n-1)
}

// Pool runs a fixed number of workers over a job's chunks. Each worker owns
// one recognizer and its own transient files; nothing is shared between them.
type Pool struct {
	Size          int
	Window        time.Duration // nominal chunk duration; clips the read window
	TmpDir        string
	Timeout       time.Duration // per recognition call; 0 waits indefinitely
	NewRecognizer transcribe.Factory
	Log           hclog.Logger
}

// Run dispatches chunks to the workers and sends one ChunkResult per started
// chunk to out, in completion order. It closes out when every worker is done.
// Once the job stops running no further chunk is dispatched or started.
// In-flight recognition calls are never interrupted, even if ctx is cancelled.
func (p *Pool) Run(ctx context.Context, job *Job, chunks []segment.AudioChunk, out chan<- ChunkResult) {
	defer close(out)

	size := p.Size
	if size <= 0 {
		size = DefaultWorkers()
	}
	size = min(size, max(1, len(chunks)))
	log := p.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	total := len(chunks)
	// Recognition calls outlive the caller's cancellation on purpose.
	callCtx := context.WithoutCancel(ctx)

	in := make(chan segment.AudioChunk)
	var g errgroup.Group
	for w := 1; w <= size; w++ {
		wlog := log.With("worker", w)
		g.Go(func() error {
			rec, err := p.newRecognizer()
			if err != nil {
				wlog.Error("recognizer unavailable, draining chunks", "error", err)
			}
			for chunk := range in {
				if !job.Running() {
					wlog.Debug("skipping chunk, job stopped", "chunk", chunk.Index)
					continue
				}
				if rec == nil {
					wlog.Error("no recognizer for chunk", "chunk", fmt.Sprintf("%d/%d", chunk.Index, total))
					out <- ChunkResult{Index: chunk.Index, Start: chunk.Start, End: chunk.End}
					continue
				}
				out <- p.process(callCtx, wlog, rec, job.Language, chunk, total)
			}
			return nil
		})
	}

	for i := range chunks {
		if !job.Running() {
			log.Info("dispatch stopped", "dispatched", i, "total", total)
			break
		}
		in <- chunks[i]
		// The worker holds the only reference from here on.
		chunks[i] = segment.AudioChunk{}
	}
	close(in)
	_ = g.Wait()
}

// newRecognizer calls the factory, turning a panic or a nil recognizer into
// an error.
func (p *Pool) newRecognizer() (rec transcribe.Recognizer, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, errors.Errorf("recognizer construction panicked: %v", r)
		}
	}()
	if rec = p.NewRecognizer(); rec == nil {
		return nil, errors.New("recognizer factory returned nil")
	}
	return rec, nil
}

// process never fails: any problem becomes an empty result.
func (p *Pool) process(ctx context.Context, log hclog.Logger, rec transcribe.Recognizer, language string, chunk segment.AudioChunk, total int) (res ChunkResult) {
	res = ChunkResult{Index: chunk.Index, Start: chunk.Start, End: chunk.End}
	log = log.With("chunk", fmt.Sprintf("%d/%d", chunk.Index, total))
	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected failure", "panic", r)
			res.Text = ""
		}
	}()

	text, err := p.recognize(ctx, log, rec, language, chunk)

	var reqErr *transcribe.RequestError
	switch {
	case err == nil:
		res.Text = strings.TrimSpace(text)
		log.Debug("recognized", "chars", len(res.Text))
	case errors.Is(err, transcribe.ErrNotUnderstood):
		log.Error("audio not understood")
	case errors.As(err, &reqErr):
		log.Error("recognition request failed", "error", reqErr)
	default:
		log.Error("unexpected failure", "error", err)
	}
	return res
}

func (p *Pool) recognize(ctx context.Context, log hclog.Logger, rec transcribe.Recognizer, language string, chunk segment.AudioChunk) (string, error) {
	f, err := os.CreateTemp(p.TmpDir, fmt.Sprintf("a2t-chunk-%03d-*.wav", chunk.Index))
	if err != nil {
		return "", errors.Wrap(err, "create chunk file")
	}
	path := f.Name()
	defer media.Remove(log, path)

	window := chunk.Duration()
	if p.Window > 0 {
		window = min(p.Window, window)
	}
	written, err := chunk.WriteWAV(f, window)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close chunk file")
	}
	if err != nil {
		return "", err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return rec.Recognize(ctx, transcribe.Audio{Path: path, Duration: written}, language)
}
