package burn

type State string

const (
	StateIdle        State = "idle"
	StateSerializing State = "serializing"
	StateRendering   State = "rendering"
	StateVerifying   State = "verifying"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateIdle:        {StateSerializing, StateFailed},
	StateSerializing: {StateRendering, StateFailed},
	StateRendering:   {StateVerifying, StateFailed},
	StateVerifying:   {StateDone, StateFailed},
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the pipeline may move from one state to
// the next. Terminal states have no successors.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
