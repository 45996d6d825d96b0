package domain

import "errors"

var (
	// ErrInvalidInput signals a rejected match request (e.g. negative k).
	ErrInvalidInput = errors.New("invalid input")
	// ErrScorerUnavailable signals that a scoring backend is unreachable or timed out.
	ErrScorerUnavailable = errors.New("scorer unavailable")
	// ErrMalformedJudgment signals an LLM completion that failed strict parsing.
	ErrMalformedJudgment = errors.New("malformed judgment")
	// ErrUnknownCandidate signals an LLM entry that names no item in the corpus snapshot.
	ErrUnknownCandidate = errors.New("unknown candidate")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a generative provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrItemNotFound signals a missing item record.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidItem signals an item record that fails validation.
	ErrInvalidItem = errors.New("invalid item")
	// ErrRateLimited signals a client-side rate limit wait that could not complete.
	ErrRateLimited = errors.New("rate limited")
)
