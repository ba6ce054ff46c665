package pagination

import "fmt"

// ParseError reports markup that does not have the expected structure, or
// an item link whose trailing segment is not an identifier.
type ParseError struct {
	Page int
	URL  string
	Href string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	where := fmt.Sprintf("page %d", e.Page)
	if e.URL != "" {
		where = fmt.Sprintf("page %d (%s)", e.Page, e.URL)
	}
	if e.Href != "" {
		return fmt.Sprintf("parse %s: item link %q: %v", where, e.Href, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", where, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
