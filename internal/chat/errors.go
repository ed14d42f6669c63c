package chat

import "fmt"

// Error is a validation failure raised before any I/O. Status carries the
// HTTP mapping the UI layer uses: 400 for empty content or title, 401 for
// a missing user identity, 404 for a missing conversation reference.
// Validation errors are never retried or queued.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func errMissingUser() *Error {
	return &Error{Status: 401, Message: "user session required"}
}

func errMissingConversation() *Error {
	return &Error{Status: 404, Message: "conversation not found"}
}

func errEmptyContent() *Error {
	return &Error{Status: 400, Message: "message content is required"}
}

func errEmptyTitle() *Error {
	return &Error{Status: 400, Message: "conversation title is required"}
}
