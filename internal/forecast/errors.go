package forecast

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is the sentinel wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid forecast request")

// InvalidRequestError describes which part of a Request failed validation.
// EntryIndex is -1 when the failure concerns a request-level field.
type InvalidRequestError struct {
	EntryIndex int
	EntryID    string
	Field      string
	Reason     string
}

func (e *InvalidRequestError) Error() string {
	if e.EntryIndex < 0 {
		return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: entry %d (%s): %s %s", ErrInvalidRequest, e.EntryIndex, e.EntryID, e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}
