package models

import "errors"

// Error kinds shared across packages. Wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrConfiguration reports invalid settings such as a chunk overlap not smaller than the chunk size.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmbedding reports an embedding provider failure or a vector of the wrong dimension.
	ErrEmbedding = errors.New("embedding error")
	// ErrIndex reports a missing or inconsistent document on an operation that requires it.
	ErrIndex = errors.New("index error")
	// ErrConflict reports a write that clashes with data another document owns.
	ErrConflict = errors.New("conflict")
	// ErrGeneration reports a completion provider failure or timeout.
	ErrGeneration = errors.New("generation error")
	// ErrInvalidInput reports a malformed request such as an empty question.
	ErrInvalidInput = errors.New("invalid input")
)
