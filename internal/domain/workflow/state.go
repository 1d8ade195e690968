package workflow

// State is a purchase request lifecycle status
type State string

const (
	StatePending    State = "PENDING"
	StateInApproval State = "IN_APPROVAL"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateCancelled  State = "CANCELLED"
)

var validStates = map[State]bool{
	StatePending:    true,
	StateInApproval: true,
	StateApproved:   true,
	StateRejected:   true,
	StateInProgress: true,
	StateCompleted:  true,
	StateCancelled:  true,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateCompleted: true,
	StateCancelled: true,
}

// IsTerminal returns true if no further approval action is accepted in this state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known request status
func (s State) IsValid() bool {
	return validStates[s]
}
