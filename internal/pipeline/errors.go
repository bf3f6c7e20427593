package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotPreprocessed  = errors.New("document has not been preprocessed")
	ErrBatchCommit      = errors.New("batch commit failed")
)

// BatchCommitError reports a rolled-back batch. Nothing from the batch was
// persisted.
type BatchCommitError struct {
	Stage     string
	Documents int
	Err       error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("%s: %s batch of %d documents rolled back: %v", ErrBatchCommit, e.Stage, e.Documents, e.Err)
}

func (e *BatchCommitError) Unwrap() error {
	return e.Err
}

func (e *BatchCommitError) Is(target error) bool {
	return target == ErrBatchCommit
}
