package tiler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode is returned when image bytes cannot be read or decoded.
	ErrDecode = errors.New("image decode failed")
	// ErrNotReady is returned when prediction or ordering is requested before
	// training or profile computation has completed.
	ErrNotReady = errors.New("classifier not ready")
	// ErrBadCoordinate is returned when an upload name does not encode a row/column pair.
	ErrBadCoordinate = errors.New("bad coordinate")
	// ErrEmptyBatch is returned when reconstruction is attempted with zero tiles.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrUnknownLabel is returned for codes outside the configured label set.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrUnknownTile is returned for tile indices outside the catalog.
	ErrUnknownTile = errors.New("unknown tile")
	// ErrAlreadyTrained is returned when training runs a second time.
	ErrAlreadyTrained = errors.New("classifier already trained")
	// ErrSealed is returned when examples are added after the classifier was marked ready.
	ErrSealed = errors.New("classifier sealed")
)

// DecodeError reports an image that could not be loaded or decoded.
//
// The underlying cause can be accessed via errors.Unwrap.
type DecodeError struct {
	Source string
	cause  error
}

func (e *DecodeError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("decode %s: %v", e.Source, ErrDecode)
	}
	return fmt.Sprintf("decode %s: %v: %v", e.Source, ErrDecode, e.cause)
}

func (e *DecodeError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.cause}
}

// CoordinateError reports an upload name that is not of the form "{row}-{column}.ext".
type CoordinateError struct {
	Name   string
	Reason string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrBadCoordinate, e.Name, e.Reason)
}

func (e *CoordinateError) Unwrap() error { return ErrBadCoordinate }

// ItemError is a failure tied to one element of a batch.
type ItemError struct {
	Index  int
	Source string
	Err    error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("#%d %s: %v", e.Index, e.Source, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// BatchError aggregates per-item failures of a batch operation.
type BatchError struct {
	Op       string
	Failures []ItemError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %d item(s) failed: %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// DimensionError indicates an embedding whose length differs from the stored examples.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
