package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is a step of the job state machine:
// Idle → Normalizing → Segmenting → Transcribing → Aggregating → Completed.
// Failed is reachable from any active state. Cancellation normally leaves
// Transcribing, or an earlier state if it arrives before dispatch.
type State int32

const (
	Idle State = iota
	Normalizing
	Segmenting
	Transcribing
	Aggregating
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{"idle", "normalizing", "segmenting", "transcribing", "aggregating", "completed", "failed", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s >= Completed }

var transitions = map[State][]State{
	Idle:         {Normalizing, Failed, Cancelled},
	Normalizing:  {Segmenting, Failed, Cancelled},
	Segmenting:   {Transcribing, Failed, Cancelled},
	Transcribing: {Aggregating, Cancelled, Failed},
	Aggregating:  {Completed, Failed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one conversion request. Only the controller running it mutates its
// state; Cancel may be called from any goroutine.
type Job struct {
	ID         string
	SourcePath string
	Language   string
	Workers    int

	running atomic.Bool
	state   atomic.Int32
}

// NewJob creates an idle job with the running flag raised.
func NewJob(sourcePath, language string, workers int) *Job {
	j := &Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		Language:   language,
		Workers:    workers,
	}
	j.running.Store(true)
	return j
}

// Cancel lowers the running flag. No new chunk starts afterwards; chunks
// already handed to a worker finish.
func (j *Job) Cancel() { j.running.Store(false) }

// Running reports whether new work may still be started.
func (j *Job) Running() bool { return j.running.Load() && !j.State().Terminal() }

func (j *Job) cancelRequested() bool { return !j.running.Load() }

// State returns the current state.
func (j *Job) State() State { return State(j.state.Load()) }

func (j *Job) transition(to State) error {
	from := j.State()
	if !canTransition(from, to) {
		return errors.Errorf("job %s: invalid transition %s -> %s", j.ID, from, to)
	}
	j.state.Store(int32(to))
	return nil
}
