package codebook

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput: the arguments violate the call contract (empty ids, negative
	// tokens, out-of-range limits, tokens colliding with the code id range).
	ErrInvalidInput = errors.New("invalid input")
	// ErrInfeasibleBudget: the fully compressed sequence still exceeds MaxOutSeqLength.
	ErrInfeasibleBudget = errors.New("infeasible budget")
)

// Kind is a coarse error class used for log fields and metric labels.
type Kind string

const (
	KindNone       Kind = "none"
	KindInvalid    Kind = "invalid_input"
	KindInfeasible Kind = "infeasible_budget"
	KindCanceled   Kind = "canceled"
	KindUnknown    Kind = "unknown"
)

// KindOf classifies err using sentinel errors only.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrInvalidInput):
		return KindInvalid
	case errors.Is(err, ErrInfeasibleBudget):
		return KindInfeasible
	default:
		return KindUnknown
	}
}
