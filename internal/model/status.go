package model

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// transitions is the full lifecycle: cancelled is terminal and only reachable
// from pending, refunded only from paid.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusRefunded},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EnsureTransition validates a requested transition. A paid→paid request is
// reported as already-settled so callers can treat it as a no-op success;
// this is what makes the return path and the webhook path safe to race.
func EnsureTransition(from, to Status) error {
	if from == StatusPaid && to == StatusPaid {
		return ErrAlreadySettled
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}
