package rag

import "errors"

// Sentinel errors for the ingestion and retrieval pipeline. Callers classify
// failures with errors.Is; the API layer maps them onto HTTP statuses.
var (
	// ErrValidation marks a malformed request, e.g. a non-positive top_k.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown document id.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a pipeline run is already active for the
	// document. The caller must re-trigger later; nothing is queued.
	ErrConflict = errors.New("processing already in progress")

	// ErrEmptyInput is returned by the chunker for blank text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrDimensionMismatch is returned when upserted vectors do not match the
	// dimensionality already stored for the document.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStaleIndex is returned when the document's index was built with a
	// different embedding model version than the one currently configured.
	ErrStaleIndex = errors.New("index built with a different embedding model")

	// ErrEmbeddingService is returned after the embedding adapter exhausts
	// its retries against the external model.
	ErrEmbeddingService = errors.New("embedding service failure")

	// ErrGeneration is returned after the generation model fails including
	// the single retry.
	ErrGeneration = errors.New("generation failure")

	// ErrNotReady is returned for chat against a document that has not
	// finished indexing.
	ErrNotReady = errors.New("document is not ready for chat")
)
