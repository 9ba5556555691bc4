package state

// StateMachine is stateless, it only answers which edges exist between states.
type StateMachine struct {
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

type Category uint

const (
	Pending Category = iota
	InProcess
	Done
)

type State struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

type Transition struct {
	Name string `json:"name"`
	From State  `json:"from"`
	To   State  `json:"to"`
}

func NewStateMachine(states []State, transitions []Transition) *StateMachine {
	return &StateMachine{States: states, Transitions: transitions}
}

// FindTransition looks up the edge named name leaving fromState.
func (sm *StateMachine) FindTransition(name, fromState string) (Transition, bool) {
	for _, transition := range sm.Transitions {
		if transition.Name == name && transition.From.Name == fromState {
			return transition, true
		}
	}
	return Transition{}, false
}

// Sources lists the states the named transition may start from, in declaration order.
func (sm *StateMachine) Sources(name string) []string {
	var r []string
	seen := map[string]bool{}
	for _, transition := range sm.Transitions {
		if transition.Name == name && !seen[transition.From.Name] {
			seen[transition.From.Name] = true
			r = append(r, transition.From.Name)
		}
	}
	return r
}

func (sm *StateMachine) IsTerminal(stateName string) bool {
	for _, s := range sm.States {
		if s.Name == stateName {
			return s.Category == Done
		}
	}
	return false
}
