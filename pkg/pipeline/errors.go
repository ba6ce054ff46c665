package pipeline

import (
	"fmt"

	"github.com/Sternrassler/xmly-dl/pkg/pagination"
)

// Stage names the step of a chain that failed.
type Stage string

const (
	// StageResolve is the resolution API call.
	StageResolve Stage = "resolve"

	// StageDownload is the media stream and file write.
	StageDownload Stage = "download"
)

// ItemError reports which item and which stage of its chain failed.
type ItemError struct {
	Item     pagination.Item
	Stage    Stage
	Location string
	Err      error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %s: %v", e.Item.ID, e.Item.Name, e.Stage, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ItemError) Unwrap() error {
	return e.Err
}
