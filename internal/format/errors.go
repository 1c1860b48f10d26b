package format

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInputTooLarge is returned when input exceeds the configured limit.
	ErrInputTooLarge = errors.New("input exceeds maximum size")

	// ErrUnknownFormat is returned when a format name or content type is not
	// recognised.
	ErrUnknownFormat = errors.New("unknown input format")
)

// ParseError reports malformed input. Line is 1-based; zero means the
// position is unknown.
type ParseError struct {
	Format Format
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Format, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// parseError wraps err as a ParseError unless it is a size-limit failure,
// which is passed through so callers can tell the two apart.
func parseError(f Format, line int, err error) error {
	if errors.Is(err, ErrInputTooLarge) {
		return err
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &ParseError{Format: f, Line: line, Err: err}
}
