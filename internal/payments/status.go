package payments

// Status is the payment lifecycle state. Regular payments move
// PENDING -> COMPLETED | CANCELLED | FAILED. Refund payments move
// PROCESSING -> RESOLVED | FAILED | CANCELLED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
	StatusResolved   Status = "RESOLVED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed, StatusResolved:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is allowed
// for a payment of the given variant.
func (s Status) CanTransitionTo(next Status, isRefund bool) bool {
	if isRefund {
		if s != StatusProcessing {
			return false
		}
		switch next {
		case StatusResolved, StatusFailed, StatusCancelled:
			return true
		}
		return false
	}

	if s != StatusPending {
		return false
	}
	switch next {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}
