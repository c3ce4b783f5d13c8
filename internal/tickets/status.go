package tickets

// Status represents the ticket lifecycle state
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusUsed      Status = "USED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// CanTransitionTo reports whether the transition is allowed. ACTIVE is
// the only non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusActive {
		return false
	}
	switch next {
	case StatusUsed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s != StatusActive
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}
