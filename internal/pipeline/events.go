package pipeline

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Sink receives job events from the controller goroutine. Progress arrives in
// completion order, not chunk order. Implementations must return promptly;
// the controller does not wait on slow consumers.
type Sink interface {
	Progress(done, total int)
	ChunkMessage(msg string)
	Error(msg string)
	Finished(text string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Progress(int, int)   {}
func (NopSink) ChunkMessage(string) {}
func (NopSink) Error(string)        {}
func (NopSink) Finished(string)     {}

// LogSink writes events to a logger.
type LogSink struct {
	Log hclog.Logger
}

func (s LogSink) Progress(done, total int) { s.Log.Debug("progress", "done", done, "total", total) }
func (s LogSink) ChunkMessage(msg string)  { s.Log.Info(msg) }
func (s LogSink) Error(msg string)         { s.Log.Error(msg) }
func (s LogSink) Finished(text string)     { s.Log.Info("finished", "chars", len(text)) }

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Progress(done, total int) {
	for _, s := range m {
		s.Progress(done, total)
	}
}

func (m MultiSink) ChunkMessage(msg string) {
	for _, s := range m {
		s.ChunkMessage(msg)
	}
}

func (m MultiSink) Error(msg string) {
	for _, s := range m {
		s.Error(msg)
	}
}

func (m MultiSink) Finished(text string) {
	for _, s := range m {
		s.Finished(text)
	}
}

// Event is a recorded sink call.
type Event struct {
	Kind    string `json:"kind"` // progress, chunk, error, finished
	Done    int    `json:"done,omitempty"`
	Total   int    `json:"total,omitempty"`
	Message string `json:"message,omitempty"`
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Progress(done, total int) { r.add(Event{Kind: "progress", Done: done, Total: total}) }
func (r *Recorder) ChunkMessage(msg string)  { r.add(Event{Kind: "chunk", Message: msg}) }
func (r *Recorder) Error(msg string)         { r.add(Event{Kind: "error", Message: msg}) }
func (r *Recorder) Finished(text string)     { r.add(Event{Kind: "finished", Message: text}) }

// Events returns a copy of what has been recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
