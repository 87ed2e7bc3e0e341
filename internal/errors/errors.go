// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrInvalidWindow is returned when a caller-supplied lookback window is not positive.
type ErrInvalidWindow struct {
	Param string
	Value int
}

func (e *ErrInvalidWindow) Error() string {
	return fmt.Sprintf("invalid %s: %d, must be a positive integer", e.Param, e.Value)
}

// ErrUnknownEventType is returned when a type-scoped query names an event
// type outside the configured allow-list.
type ErrUnknownEventType struct {
	Type string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown event type: %q", e.Type)
}
