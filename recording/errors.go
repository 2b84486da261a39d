package recording

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWindow is returned when a requested window does not end after it starts.
	ErrInvalidWindow = errors.New("end time must be after start time")

	// ErrCatalogEmpty is returned when no source file matched the camera and date.
	ErrCatalogEmpty = errors.New("no input files found")

	// ErrNoOverlap is returned when no source file overlaps the requested window.
	ErrNoOverlap = errors.New("no overlapping segments found for given time range")
)

// ProbeError reports a failed duration inspection.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TrimError reports a failed single-file trim.
type TrimError struct {
	Path     string
	Offset   float64
	Duration float64
	Err      error
}

func (e *TrimError) Error() string {
	return fmt.Sprintf("trim %s at %.3fs for %.3fs: %v", e.Path, e.Offset, e.Duration, e.Err)
}

func (e *TrimError) Unwrap() error { return e.Err }

// ConcatError reports a failed final stitch of trimmed segments.
type ConcatError struct {
	Output string
	Err    error
}

func (e *ConcatError) Error() string {
	return fmt.Sprintf("concatenate into %s: %v", e.Output, e.Err)
}

func (e *ConcatError) Unwrap() error { return e.Err }

// ChunkError reports a failed chunk extraction. It is never fatal to a split.
type ChunkError struct {
	Index int
	Path  string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
