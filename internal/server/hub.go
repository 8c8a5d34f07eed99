package server

import (
	"sync"

	"github.com/zudsniper/audio2text/internal/pipeline"
)

// hub is the pipeline.Sink of one job. Events are appended to a history that
// every reader walks at its own pace, so a slow reader falls behind but never
// misses an event. Publishing never blocks the controller.
type hub struct {
	mu      sync.Mutex
	history []pipeline.Event
	done    bool
	wake    chan struct{} // closed and replaced on every change

	progressDone  int
	progressTotal int
}

func newHub() *hub {
	return &hub{wake: make(chan struct{})}
}

func (h *hub) Progress(done, total int) {
	h.publish(pipeline.Event{Kind: "progress", Done: done, Total: total})
}

func (h *hub) ChunkMessage(msg string) { h.publish(pipeline.Event{Kind: "chunk", Message: msg}) }
func (h *hub) Error(msg string)        { h.publish(pipeline.Event{Kind: "error", Message: msg}) }
func (h *hub) Finished(text string)    { h.publish(pipeline.Event{Kind: "finished", Message: text}) }

func (h *hub) publish(e pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.history = append(h.history, e)
	if e.Kind == "progress" {
		h.progressDone, h.progressTotal = e.Done, e.Total
	}
	if e.Kind == "error" || e.Kind == "finished" {
		h.done = true
	}
	h.notifyLocked()
}

// close ends the stream. Safe to call more than once.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		h.done = true
		h.notifyLocked()
	}
}

func (h *hub) notifyLocked() {
	close(h.wake)
	h.wake = make(chan struct{})
}

// since returns the events after the first n, whether the stream has ended,
// and a channel closed on the next change. A reader loops until done is
// reported with no events left.
func (h *hub) since(n int) ([]pipeline.Event, bool, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var events []pipeline.Event
	if n < len(h.history) {
		events = append(events, h.history[n:]...)
	}
	return events, h.done, h.wake
}

func (h *hub) progress() (done, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progressDone, h.progressTotal
}
