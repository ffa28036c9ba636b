// Package transaction provides transaction management abstractions.
package transaction

import (
	"context"
	"errors"
)

// ErrConflictExhausted is returned when a read-write transaction could not
// commit because of concurrent conflicting commits, after the store's retry
// budget was used up.
var ErrConflictExhausted = errors.New("transaction conflict: retry budget exhausted")

// ErrNestedTransaction is returned when attempting to start a transaction
// inside an already-active transaction scope.
var ErrNestedTransaction = errors.New("nested transaction detected")

// Scope manages the lifecycle of a transaction.
// It provides a clean abstraction for executing business logic
// within a transactional boundary.
//
// Implementations (e.g., Spanner read-write, in-memory) handle
// the concrete transaction lifecycle: begin, commit/rollback, and retry.
// Reads performed through the ctx passed to fn are validated at commit, so a
// read-modify-write inside fn never loses a concurrent update.
type Scope interface {
	// Execute runs the given function within a transaction.
	// The transaction is committed if fn returns nil, rolled back otherwise.
	// The ctx passed to fn contains the transaction for repositories to use.
	// fn may be invoked more than once and must not have external side effects.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExecuteWithResult runs fn within a transaction and returns the result.
// This is a generic helper that wraps Scope.Execute for cases
// where the transaction needs to return a value.
func ExecuteWithResult[T any](ctx context.Context, scope Scope, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := scope.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}
