package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInput marks malformed caller input: bad policy values, unknown
	// resolution presets, invalid bitrate strings.
	ErrInput = errors.New("input error")
	// ErrConstraint marks a policy floor refusal. It is informational, not a
	// failure; the phase executor converts it into a constraint skip.
	ErrConstraint = errors.New("policy constraint")
	// ErrToolUnavailable marks a plan no installed external tool can realize.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrExternalTool marks a non-zero exit or empty output from a tool.
	ErrExternalTool = errors.New("external tool error")
	// ErrTimeout marks an external tool exceeding its per-operation budget.
	ErrTimeout = errors.New("timeout")
	// ErrContention marks a store write lock that could not be acquired
	// within the bounded retry budget. Jobs failing with this are retryable.
	ErrContention = errors.New("store contention")
	// ErrIntegrity marks a foreign-key or check-constraint violation. Never
	// recovered locally.
	ErrIntegrity = errors.New("store integrity")
	// ErrFilesystem marks backup, rename, disk-space, or cleanup failures.
	ErrFilesystem = errors.New("filesystem error")
	// ErrConfiguration marks invalid or missing operator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing record or file.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failed job may be safely re-enqueued without
// operator intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrTimeout)
}

// IsConstraint reports whether the error is a policy-constraint signal rather
// than a genuine failure.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
