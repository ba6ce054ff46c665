package download

import (
	"errors"
	"fmt"
)

// ErrNameOutsideDir is returned when an item name contains path elements
// that would move the file out of the save directory.
var ErrNameOutsideDir = errors.New("file name does not stay directly in the save directory")

// FilesystemError reports a directory or file operation that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FilesystemError) Unwrap() error {
	return e.Err
}
