package models

import "time"

// ConversionStatus represents the outcome of converting one input file.
type ConversionStatus string

const (
	ConversionStatusConverted ConversionStatus = "converted"
	ConversionStatusFailed    ConversionStatus = "failed"
	ConversionStatusSkipped   ConversionStatus = "skipped"
)

// ConversionResult describes what happened to a single input file.
type ConversionResult struct {
	RunID      string           `json:"runId"`
	Input      string           `json:"input"`
	Output     string           `json:"output,omitempty"`
	Format     string           `json:"format"`
	Status     ConversionStatus `json:"status"`
	Metadata   *Metadata        `json:"metadata,omitempty"`
	Shape      [3]int           `json:"shape"`
	Warnings   []string         `json:"warnings,omitempty"`
	ErrorKind  string           `json:"errorKind,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"durationMs"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Failed reports whether the conversion did not produce an output.
func (r *ConversionResult) Failed() bool {
	return r.Status == ConversionStatusFailed
}
