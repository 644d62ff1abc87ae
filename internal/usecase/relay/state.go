package relay

// State is a phase of the poll loop.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateDelivering
	StateSleeping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateReconciling:
		return "RECONCILING"
	case StateDelivering:
		return "DELIVERING"
	case StateSleeping:
		return "SLEEPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// validTransitions lists the allowed successors of each state.
// ERROR is always followed by SLEEPING.
var validTransitions = map[State][]State{
	StateIdle:        {StateFetching},
	StateFetching:    {StateReconciling, StateError},
	StateReconciling: {StateDelivering, StateError},
	StateDelivering:  {StateSleeping, StateError},
	StateSleeping:    {StateFetching},
	StateError:       {StateSleeping},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionFunc observes state changes. It runs on the loop goroutine and
// must not block.
type TransitionFunc func(from, to State)
