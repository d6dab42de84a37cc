// Package capture drives the photo booth shot sequence: a countdown,
// then ShotCount still frames separated by short pauses, taken from a
// live camera source.
package capture

import "fmt"

// ShotCount is the number of frames in every capture session.
const ShotCount = 3

// Phase identifies a step of the capture choreography.
type Phase int

const (
	Idle Phase = iota
	CountingDown
	Capturing
	Pausing
	Done
	Failed
)

var phaseNames = [...]string{
	Idle:         "idle",
	CountingDown: "countdown",
	Capturing:    "capturing",
	Pausing:      "pausing",
	Done:         "done",
	Failed:       "error",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// State is the sequencer state. Count is set only in CountingDown,
// Index only in Capturing and Pausing, Err only in Failed.
type State struct {
	Phase Phase
	Count int
	Index int
	Err   error
}

// Transition returns the state that follows s. countdownFrom is the
// first countdown value; zero skips the countdown. Done and Failed are
// terminal and map to themselves.
func Transition(s State, countdownFrom int) State {
	switch s.Phase {
	case Idle:
		if countdownFrom > 0 {
			return State{Phase: CountingDown, Count: countdownFrom}
		}
		return State{Phase: Capturing, Index: 1}
	case CountingDown:
		if s.Count > 1 {
			return State{Phase: CountingDown, Count: s.Count - 1}
		}
		return State{Phase: Capturing, Index: 1}
	case Capturing:
		if s.Index < ShotCount {
			return State{Phase: Pausing, Index: s.Index}
		}
		return State{Phase: Done}
	case Pausing:
		return State{Phase: Capturing, Index: s.Index + 1}
	default:
		return s
	}
}

// Fail returns the terminal failure state for err.
func Fail(err error) State {
	return State{Phase: Failed, Err: err}
}
