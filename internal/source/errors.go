package source

import (
	"errors"
	"fmt"
)

// ErrSourceFormat is matched by every *FormatError.
var ErrSourceFormat = errors.New("source: malformed record")

// FormatError reports a non-blank record that is not valid or lacks a required field.
type FormatError struct {
	Source string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("source %s: line %d: %s", e.Source, e.Line, e.Reason)
}

// Is makes errors.Is(err, ErrSourceFormat) hold.
func (e *FormatError) Is(target error) bool {
	return target == ErrSourceFormat
}
