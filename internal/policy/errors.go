package policy

import "fmt"

// PolicyError signals that applying the policy would violate one of its own
// floors. It is a constraint signal, not a failure: the phase executor
// records it as a constraint skip and reports success with zero changes.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "constraint: " + e.Reason
}

func constraintErr(format string, args ...any) *PolicyError {
	return &PolicyError{Reason: fmt.Sprintf(format, args...)}
}
