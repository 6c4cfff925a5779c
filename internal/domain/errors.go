package domain

import "errors"

// Error classes. Implementations wrap them together with the cause, so
// errors.Is matches both the class and the underlying error.
var (
	// ErrTranscriptUnavailable means a video has no usable transcript.
	// Indexing skips such videos instead of failing.
	ErrTranscriptUnavailable = errors.New("transcript not available")

	// ErrEmbedding means a vector could not be produced.
	ErrEmbedding = errors.New("embedding failed")

	// ErrVectorStore means the vector store rejected or failed an operation.
	ErrVectorStore = errors.New("vector store failed")

	// ErrGeneration means the language model did not produce an answer.
	ErrGeneration = errors.New("generation failed")

	// ErrConfiguration means a component cannot be built from the given settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrIndexing means an indexing run was aborted.
	ErrIndexing = errors.New("indexing failed")

	// ErrContentSource means the channel or its videos could not be listed.
	ErrContentSource = errors.New("content source failed")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")
)
