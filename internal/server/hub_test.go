package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zudsniper/audio2text/internal/pipeline"
)

// drain reads from h the way the event stream does and returns what it saw.
func drain(t *testing.T, h *hub) []pipeline.Event {
	t.Helper()
	var got []pipeline.Event
	for {
		events, done, wake := h.since(len(got))
		got = append(got, events...)
		if done {
			return got
		}
		select {
		case <-wake:
		case <-time.After(5 * time.Second):
			t.Fatalf("stream did not end, got %d events", len(got))
		}
	}
}

func TestHubSlowReaderKeepsTerminalEvent(t *testing.T) {
	h := newHub()
	for i := 1; i <= 70; i++ {
		h.Progress(i, 70)
	}
	h.Finished("the transcript")

	got := drain(t, h)
	require.Len(t, got, 71)
	assert.Equal(t, pipeline.Event{Kind: "finished", Message: "the transcript"}, got[70])
}

func TestHubLiveReader(t *testing.T) {
	h := newHub()
	result := make(chan []pipeline.Event)
	go func() { result <- drain(t, h) }()

	h.Progress(1, 2)
	h.ChunkMessage("Chunk 1/2 processed (5 characters)")
	h.Progress(2, 2)
	h.Error("conversion cancelled after 2/2 chunks")
	h.Finished("ignored after the stream ended")

	got := <-result
	require.Len(t, got, 4)
	assert.Equal(t, "error", got[3].Kind)
	done, total := h.progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)
}

func TestHubCloseWithoutTerminalEvent(t *testing.T) {
	h := newHub()
	h.Progress(1, 3)
	h.close()
	h.close()
	assert.Len(t, drain(t, h), 1)
}
