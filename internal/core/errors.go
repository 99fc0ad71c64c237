package core

import "errors"

var (
	// ErrNotFound is returned when a bot does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when a request is missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrExtraction is returned when no text can be read from a document.
	ErrExtraction = errors.New("document extraction failed")

	// ErrUnsupportedFile is returned for documents whose type cannot be ingested.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrEmbeddingService is returned when the embedding service call fails.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrIndexWrite is returned when the vector index rejects or fails an upsert.
	ErrIndexWrite = errors.New("vector index write failed")

	// ErrIndexQuery is returned when the vector index query fails.
	ErrIndexQuery = errors.New("vector index query failed")

	// ErrCompletionService is returned by the completion model. It never leaves LLMService.
	ErrCompletionService = errors.New("completion service error")

	// ErrInternal wraps persistence failures that abort a chat turn.
	ErrInternal = errors.New("internal error")

	// ErrConfigMissing is returned by ingestion when embedding or index credentials are unset.
	ErrConfigMissing = errors.New("required configuration missing")
)
