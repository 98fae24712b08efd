package store

import (
	"errors"
	"fmt"
)

// ErrInvalidPlanTransition is returned when a plan status update does not
// appear in the closed transition table.
var ErrInvalidPlanTransition = errors.New("invalid plan status transition")

// ErrDuplicateJob is returned by enqueue when the target file already has an
// active (queued or running) job.
var ErrDuplicateJob = errors.New("file already has an active job")

func invalidTransition(from, to PlanStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidPlanTransition, from, to)
}
