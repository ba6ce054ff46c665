package resolve

import (
	"errors"
	"fmt"
)

var errMissingSource = errors.New("success envelope without data.src")

// ResolutionError reports a reachable endpoint that did not resolve the
// item. Body is the raw response for diagnosis.
type ResolutionError struct {
	ID   int64
	Ret  int
	Body string
	Err  error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve item %d: %v: %s", e.ID, e.Err, e.Body)
	}
	return fmt.Sprintf("resolve item %d: ret %d: %s", e.ID, e.Ret, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
