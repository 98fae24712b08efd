// Package services defines the shared error taxonomy used across stores,
// tool invocations, and job handlers. Errors are classified by wrapping them
// with sentinel markers so callers can branch on kind without depending on
// concrete error types.
package services
