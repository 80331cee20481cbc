package autopause

// State is the engine's monitoring state.
type State string

const (
	// StateDisabled means no call state listener is registered.
	StateDisabled State = "DISABLED"
	// StateEnabled means a listener is registered and call events are
	// forwarded as decisions.
	StateEnabled State = "ENABLED"
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateDisabled: {StateEnabled},
	StateEnabled:  {StateDisabled},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// gate combines the latest value of two boolean inputs with AND and
// reports only changes of the combined value.
type gate struct {
	a, b       bool
	hasA, hasB bool
	last       bool
	hasLast    bool
}

// setA records a new value for the first input and returns the combined
// value and whether it should be acted on.
func (g *gate) setA(v bool) (bool, bool) {
	g.a, g.hasA = v, true
	return g.eval()
}

// setB records a new value for the second input.
func (g *gate) setB(v bool) (bool, bool) {
	g.b, g.hasB = v, true
	return g.eval()
}

func (g *gate) eval() (bool, bool) {
	if !g.hasA || !g.hasB {
		return false, false
	}
	v := g.a && g.b
	if g.hasLast && g.last == v {
		return v, false
	}
	g.last, g.hasLast = v, true
	return v, true
}

// open reports whether the last emitted combined value was true.
func (g *gate) open() bool {
	return g.hasLast && g.last
}
