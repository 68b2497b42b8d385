package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIngestion marks per-file ingestion failures. It is fatal to the
	// batch only when caused by duplicate chunk IDs across the corpus.
	ErrIngestion = errors.New("ingestion failure")
	// ErrDuplicateChunkID is the one fatal ingestion condition.
	ErrDuplicateChunkID = errors.New("duplicate chunk id")
	// ErrRetrievalTransport marks an unreachable external index; it blocks
	// the whole request and is surfaced, never swallowed.
	ErrRetrievalTransport = errors.New("retrieval transport failure")
	// ErrGenerationTransport marks a generation backend failure after the
	// retry budget is exhausted.
	ErrGenerationTransport = errors.New("generation transport failure")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
