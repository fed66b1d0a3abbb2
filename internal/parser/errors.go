package parser

import "fmt"

// MetadataError reports a filename that does not follow the naming convention.
type MetadataError struct {
	Name   string
	Field  string
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("metadata: %s: field %s: %s", e.Name, e.Field, e.Reason)
	}
	return fmt.Sprintf("metadata: %s: %s", e.Name, e.Reason)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// FormatError reports malformed file content. Block and Line are 1-based;
// zero means the position is unknown or not applicable.
type FormatError struct {
	Block  int
	Line   int
	Token  string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "format"
	if e.Block > 0 {
		msg += fmt.Sprintf(": block %d", e.Block)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(": line %d", e.Line)
	}
	msg += ": " + e.Reason
	if e.Token != "" {
		msg += fmt.Sprintf(" (%q)", e.Token)
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// ShapeError reports flux tables that cannot be reshaped into (T, N, M).
type ShapeError struct {
	Block  int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Block > 0 {
		return fmt.Sprintf("shape: block %d: %s", e.Block, e.Reason)
	}
	return "shape: " + e.Reason
}
