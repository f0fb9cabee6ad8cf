// Package store provides the transactional record store the allocation engine
// runs against: typed JSON records addressed by string keys, mutated inside
// atomic transactions with optimistic concurrency control.
package store

import (
	"context"
	"errors"
)

var (
	// ErrConflict reports that a key read by a transaction was modified by a
	// concurrently committed transaction before this one could commit. The
	// store retries the whole transaction callback transparently.
	ErrConflict = errors.New("store: transaction conflict")

	// ErrConflictExhausted is returned once the bounded retry budget runs out.
	// Callers surface it as a transient "try again" failure.
	ErrConflictExhausted = errors.New("store: transaction retries exhausted")

	// ErrAbsent is returned by Update when the target record does not exist.
	ErrAbsent = errors.New("store: record does not exist")
)

// DefaultMaxAttempts bounds transparent conflict retries per transaction.
const DefaultMaxAttempts = 5

// Txn is the read-validate-write surface of a single atomic transaction.
// Reads are snapshotted; writes are buffered and become visible all at once on
// commit, or not at all. A transaction observes its own pending writes.
type Txn interface {
	// Get unmarshals the record at key into dst and reports whether it exists.
	Get(key string, dst interface{}) (bool, error)
	// Set buffers a full overwrite of the record at key.
	Set(key string, value interface{}) error
	// Update buffers a partial overwrite, merging fields into the existing
	// record at the top level. The record must exist.
	Update(key string, fields map[string]interface{}) error
	// Delete buffers removal of the record at key.
	Delete(key string)
}

// Store is the transactional record store consumed by the allocation engine.
type Store interface {
	// RunTransaction executes fn atomically. If a read key changes before
	// commit, fn is re-run from scratch against a fresh snapshot, a bounded
	// number of times. Any non-conflict error from fn aborts the transaction
	// and is returned unchanged; nothing is written.
	RunTransaction(ctx context.Context, fn func(tx Txn) error) error

	// Get reads a single record outside any transaction.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)

	// Keys lists committed record keys with the given prefix, sorted. It is a
	// non-transactional read used by list views and the consistency auditor;
	// it never joins a transaction's read set.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// runWithRetry drives the optimistic retry loop shared by implementations.
func runWithRetry(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return ErrConflictExhausted
}
