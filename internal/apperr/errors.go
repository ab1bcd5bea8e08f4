// Package apperr holds the sentinel errors shared by the conversion layers.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNotNotebook       = errors.New("not a notebook file")
	ErrInvalidNotebook   = errors.New("invalid notebook format")
	ErrMalformedCell     = errors.New("malformed cell")
	ErrUnmatchedMutation = errors.New("mutation has no anchoring import")
)
