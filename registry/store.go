package registry

import (
	"context"
	"errors"
	"time"
)

// Store-level errors. Implementations wrap these so callers can classify
// failures with errors.Is.
var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a conditional write lost a race with a
	// concurrent mutation on the same key.
	ErrConflict = errors.New("conditional write conflict")

	// ErrUnavailable indicates the underlying storage was unreachable or
	// timed out. Safe for callers to retry with backoff.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the connection record store. The registry engine and the expiry
// sweeper are its only callers; all mutation goes through the conditional
// primitives below, keyed on the record's UpdatedAt token.
type Store interface {
	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, did, peerID string) (Record, error)

	// PutIfAbsentOrOwned writes the record when no live record exists for
	// the key (expectedUpdatedAt zero), or when the existing live record
	// carries the expected UpdatedAt token (owner refresh). Tombstones
	// count as absent. Returns ErrConflict otherwise.
	PutIfAbsentOrOwned(ctx context.Context, record Record, expectedUpdatedAt int64) error

	// MarkDisconnected transitions the key to the given tombstone record,
	// conditional on the stored UpdatedAt matching expectedUpdatedAt.
	// Returns ErrConflict when the record moved, ErrNotFound when it
	// vanished.
	MarkDisconnected(ctx context.Context, tombstone Record, expectedUpdatedAt int64) error

	// ScanExpired returns the keys of all records whose expiry marker is at
	// or before now. Used only by the sweeper.
	ScanExpired(ctx context.Context, now time.Time) ([]Key, error)

	// DeleteIfDisconnected physically removes the record, valid only on
	// tombstones. Returns ErrNotFound when the record is absent or still
	// live.
	DeleteIfDisconnected(ctx context.Context, did, peerID string) error
}
