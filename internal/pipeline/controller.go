// Package pipeline runs one conversion end to end: normalize, segment,
// transcribe the chunks in parallel and assemble the ordered transcript.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/segment"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

// ErrCancelled is returned when a job was stopped before every chunk ran.
var ErrCancelled = errors.New("conversion cancelled")

// Options tunes a Controller.
type Options struct {
	Workers          int           // 0 selects DefaultWorkers
	ChunkDuration    time.Duration // 0 selects segment.DefaultChunkDuration
	TmpDir           string
	RecognizeTimeout time.Duration
}

// Controller orchestrates jobs. It is safe to run several jobs concurrently;
// each call to Run owns its job exclusively.
type Controller struct {
	normalizer    *media.Normalizer
	newRecognizer transcribe.Factory
	sink          Sink
	opts          Options
	log           hclog.Logger
}

func NewController(normalizer *media.Normalizer, newRecognizer transcribe.Factory, sink Sink, opts Options, log hclog.Logger) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = segment.DefaultChunkDuration
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Controller{
		normalizer:    normalizer,
		newRecognizer: newRecognizer,
		sink:          sink,
		opts:          opts,
		log:           log.Named("pipeline"),
	}
}

// WithSink returns a copy of c that reports to sink.
func (c *Controller) WithSink(sink Sink) *Controller {
	cc := *c
	cc.sink = sink
	return &cc
}

// NewJob creates a job using the controller's worker count.
func (c *Controller) NewJob(sourcePath, language string) *Job {
	return NewJob(sourcePath, language, c.opts.Workers)
}

// Convert runs a fresh job and returns the formatted transcript text.
func (c *Controller) Convert(ctx context.Context, sourcePath, language string) (string, error) {
	tr, err := c.Run(ctx, c.NewJob(sourcePath, language))
	if tr == nil {
		return "", err
	}
	return tr.Text, err
}

// Run executes job to a terminal state. Cancelling ctx has the same effect as
// job.Cancel. On cancellation the transcript of the chunks that did finish is
// returned along with ErrCancelled.
func (c *Controller) Run(ctx context.Context, job *Job) (*transcribe.Transcript, error) {
	log := c.log.With("job", job.ID)
	stop := context.AfterFunc(ctx, job.Cancel)
	defer stop()

	log.Info("starting conversion", "source", job.SourcePath, "language", job.Language, "workers", job.Workers)
	if err := media.CheckSource(job.SourcePath); err != nil {
		return nil, c.fail(log, job, err)
	}

	c.enter(log, job, Normalizing)
	wavPath, err := c.normalizer.Normalize(ctx, job.SourcePath)
	if err != nil {
		if job.cancelRequested() {
			return nil, c.cancel(log, job, 0, 0)
		}
		return nil, c.fail(log, job, err)
	}
	defer media.Remove(log, wavPath)

	c.enter(log, job, Segmenting)
	wave, err := media.LoadWaveform(wavPath)
	if err != nil {
		return nil, c.fail(log, job, err)
	}
	duration := wave.Duration()
	chunks, err := segment.Split(wave, c.opts.ChunkDuration)
	if err != nil {
		return nil, c.fail(log, job, err)
	}
	total := len(chunks)
	log.Info("segmented", "duration", duration, "chunks", total)

	if job.cancelRequested() {
		return nil, c.cancel(log, job, 0, total)
	}
	c.enter(log, job, Transcribing)
	pool := &Pool{
		Size:          job.Workers,
		Window:        c.opts.ChunkDuration,
		TmpDir:        c.opts.TmpDir,
		Timeout:       c.opts.RecognizeTimeout,
		NewRecognizer: c.newRecognizer,
		Log:           log.Named("pool"),
	}
	results := make(chan ChunkResult)
	go pool.Run(ctx, job, chunks, results)

	agg := NewAggregator(job.Language, total)
	for r := range results {
		agg.Add(r)
		done := agg.Len()
		c.sink.Progress(done, total)
		c.sink.ChunkMessage(fmt.Sprintf("Chunk %d/%d processed (%d characters)", r.Index, total, len(r.Text)))
	}

	if job.cancelRequested() && agg.Len() < total {
		tr := agg.Transcript()
		tr.Duration = duration
		return tr, c.cancel(log, job, agg.Len(), total)
	}

	c.enter(log, job, Aggregating)
	tr := agg.Transcript()
	tr.Duration = duration
	c.enter(log, job, Completed)
	log.Info("conversion finished", "chunks", total, "recognized", len(tr.Segments), "chars", len(tr.Text))
	c.sink.Finished(tr.Text)
	return tr, nil
}

func (c *Controller) enter(log hclog.Logger, job *Job, s State) {
	if err := job.transition(s); err != nil {
		log.Warn("state change rejected", "error", err)
		return
	}
	log.Debug("state", "state", s)
}

func (c *Controller) fail(log hclog.Logger, job *Job, err error) error {
	c.enter(log, job, Failed)
	log.Error("conversion failed", "error", err)
	c.sink.Error(err.Error())
	return err
}

func (c *Controller) cancel(log hclog.Logger, job *Job, done, total int) error {
	c.enter(log, job, Cancelled)
	log.Warn("conversion cancelled", "done", done, "total", total)
	c.sink.Error(fmt.Sprintf("%v after %d/%d chunks", ErrCancelled, done, total))
	return ErrCancelled
}
