package ingest

import "fmt"

// Error codes reported to producers.
const (
	CodeSessionNotFound = "session_not_found"
	CodeItemNotFound    = "item_not_found"
	CodeSessionTerminal = "session_terminal"
)

// NotFoundError means an event referenced an id the store does not hold.
type NotFoundError struct {
	Code string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.ID)
}

// ConflictError means an event cannot apply to the record's current state.
type ConflictError struct {
	Code string
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.ID)
}
