package consultation

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is one step of the consultation workflow.
type State string

const (
	StateIdle                  State = "idle"
	StateRecording             State = "recording"
	StateTranscribing          State = "transcribing"
	StateStructuring           State = "structuring"
	StateAwaitingClarification State = "awaiting_clarification"
	StateStructured            State = "structured"
	StateAnalyzing             State = "analyzing"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// transitions lists the allowed workflow moves. A stage in flight blocks any
// other stage for the same consultation; a physician can skip dictation and
// analyze hand-typed fields straight from idle.
var transitions = map[State][]State{
	StateIdle:                  {StateRecording, StateTranscribing, StateStructuring, StateAnalyzing},
	StateRecording:             {StateTranscribing, StateIdle, StateFailed},
	StateTranscribing:          {StateStructuring, StateFailed},
	StateStructuring:           {StateAwaitingClarification, StateStructured, StateFailed},
	StateAwaitingClarification: {StateStructured, StateAnalyzing, StateFailed},
	StateStructured:            {StateAnalyzing, StateStructuring, StateDone, StateFailed},
	StateAnalyzing:             {StateDone, StateFailed},
	StateDone:                  {StateAnalyzing, StateStructuring},
	StateFailed:                {StateIdle, StateRecording, StateTranscribing, StateStructuring, StateAnalyzing},
}

// Workflow tracks per-consultation pipeline progress with guarded
// transitions so only one stage can be in flight at a time.
type Workflow struct {
	mu     sync.Mutex
	states map[uuid.UUID]State
}

// NewWorkflow creates an empty workflow tracker.
func NewWorkflow() *Workflow {
	return &Workflow{states: make(map[uuid.UUID]State)}
}

// State returns the current state for a consultation, defaulting to idle.
func (w *Workflow) State(id uuid.UUID) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.states[id]; ok {
		return s
	}
	return StateIdle
}

// Transition moves a consultation to the target state. It fails when the
// move is not allowed from the current state.
func (w *Workflow) Transition(id uuid.UUID, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	from, ok := w.states[id]
	if !ok {
		from = StateIdle
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			w.states[id] = to
			return nil
		}
	}
	return fmt.Errorf("cannot move from %s to %s", from, to)
}

// Reset returns a consultation to idle regardless of its current state.
func (w *Workflow) Reset(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[id] = StateIdle
}
