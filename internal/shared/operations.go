package shared

import "errors"

// OperationRecorder counts domain operations by outcome.
type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// OutcomeOf classifies err: nil is a success, a validation or domain error is
// a rejection and anything else is an error. Domain errors are the sentinels
// passed in known.
func OutcomeOf(err error, known ...error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return OutcomeRejected
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return OutcomeRejected
		}
	}
	return OutcomeError
}

// Observe records operation with the outcome of err. A nil recorder is ignored.
func Observe(r OperationRecorder, operation string, err error, known ...error) {
	if r == nil {
		return
	}
	r.RecordOperation(operation, OutcomeOf(err, known...))
}
