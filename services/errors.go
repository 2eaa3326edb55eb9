package services

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRequestedOrFriends: a request already exists between the
	// pair (in either direction) or they are already friends. Surfaced
	// as a no-op to the user.
	ErrAlreadyRequestedOrFriends = errors.New("friend request already exists or users are already friends")

	// ErrRequestNotFound: the request was already resolved, usually by
	// the counterparty racing us. Expected under concurrency; the caller
	// should treat the state as already settled, not alarm the user.
	ErrRequestNotFound = errors.New("friend request not found")

	// ErrEmptyComment rejects whitespace-only comment text locally,
	// before any network round trip.
	ErrEmptyComment = errors.New("comment text is empty")

	// ErrBlocked: one side of the pair has blocked the other.
	ErrBlocked = errors.New("user is blocked")

	ErrAccountNotFound = errors.New("account not found")
	ErrPostNotFound    = errors.New("post not found")
)

// TransientStoreError wraps a timeout or connectivity failure. The
// optimistic local change has already been rolled back; the original
// intent is safe to re-invoke. The engine never retries on its own to
// avoid duplicate side effects.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store failure: %v", e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// AtomicTransitionError: a batched multi-record transition did not
// commit. Nothing was applied, locally or remotely; these transitions
// are never applied optimistically so no rollback is needed.
type AtomicTransitionError struct {
	Op  string
	Err error
}

func (e *AtomicTransitionError) Error() string {
	return fmt.Sprintf("atomic %s transition failed: %v", e.Op, e.Err)
}

func (e *AtomicTransitionError) Unwrap() error { return e.Err }
