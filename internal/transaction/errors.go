package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Begin while another transaction is in flight on the same store.
	ErrAlreadyActive = errors.New("transaction already active")
	// ErrNotActive is returned by mutating calls made outside an active transaction.
	ErrNotActive = errors.New("no active transaction")

	ErrIO            = errors.New("file operation failed")
	ErrSerialization = errors.New("record serialization failed")
)

// IOError reports a failed filesystem operation on Path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// SerializationError reports content that could not be encoded for Path.
// Nothing has been written or backed up when it is returned.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// CommitCleanupError means the transaction committed but some backup
// artifacts could not be removed. The live files are already final.
type CommitCleanupError struct {
	TransactionID string
	Err           error
}

func (e *CommitCleanupError) Error() string {
	return fmt.Sprintf("transaction %s committed with incomplete cleanup: %v", e.TransactionID, e.Err)
}

func (e *CommitCleanupError) Unwrap() error { return e.Err }
