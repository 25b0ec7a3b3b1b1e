package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine-level errors, mapped by the transport adapter onto response codes.
var (
	// ErrInvalidRequest indicates malformed input. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrContention indicates the operation lost a concurrency race even
	// after its single retry. Safe for callers to reissue, since connect
	// and disconnect are both idempotent.
	ErrContention = errors.New("write contention")
)

// DefaultRetention is how long disconnect tombstones are kept before the
// sweeper may reclaim them.
const DefaultRetention = 5 * time.Minute

// ConnectRequest carries the inputs of a connect operation.
type ConnectRequest struct {
	DID      string
	PeerID   string
	TTL      time.Duration
	Endpoint string
}

// Engine is the connect/disconnect state machine. It is the only
// writer-of-record; every mutation goes through the store's conditional
// primitives and is retried exactly once on conflict.
type Engine struct {
	Store     Store
	Retention time.Duration    // tombstone retention (default DefaultRetention)
	Now       func() time.Time // clock override for tests
	NewID     func() string    // connection id source (default uuid)
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store}
}

// Connect creates a CONNECTED record for the key, or idempotently refreshes
// the existing one when the key is already connected. Tombstones not yet
// swept are overwritten with a fresh record.
func (e *Engine) Connect(ctx context.Context, req ConnectRequest) (record Record, err error) {
	defer func(begin time.Time) {
		zerolog.Ctx(ctx).Info().
			Dur("elapsed", time.Since(begin)).
			Err(err).
			Str("did", req.DID).
			Str("peer_id", req.PeerID).
			Msg("connect")
	}(time.Now())

	if req.DID == "" || req.PeerID == "" || req.TTL <= 0 {
		return Record{}, fmt.Errorf("%w: did, peerId, and a positive ttl are required", ErrInvalidRequest)
	}

	record, err = e.connectOnce(ctx, req)
	if errors.Is(err, ErrConflict) {
		// lost a race with a concurrent connect/disconnect; re-read and
		// retry exactly once
		record, err = e.connectOnce(ctx, req)
		if errors.Is(err, ErrConflict) {
			return Record{}, fmt.Errorf("connect %v/%v: %w", req.DID, req.PeerID, ErrContention)
		}
	}
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (e *Engine) connectOnce(ctx context.Context, req ConnectRequest) (Record, error) {
	existing, err := e.Store.Get(ctx, req.DID, req.PeerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, fmt.Errorf("connect %v/%v: %w", req.DID, req.PeerID, err)
	}

	now := e.now()
	record := Record{
		DID:       req.DID,
		PeerID:    req.PeerID,
		State:     StateConnected,
		Endpoint:  req.Endpoint,
		CreatedAt: now.UnixNano(),
		UpdatedAt: now.UnixNano(),
		ExpiresAt: now.Add(req.TTL).Unix(),
	}

	var expected int64
	if existing.Live() {
		// idempotent refresh: keep the record's identity, fence the write
		// on the token we read
		record.ConnectionID = existing.ConnectionID
		record.CreatedAt = existing.CreatedAt
		expected = existing.UpdatedAt
	} else {
		record.ConnectionID = e.newID()
	}
	if record.UpdatedAt <= existing.UpdatedAt {
		record.UpdatedAt = existing.UpdatedAt + 1
	}

	if err := e.Store.PutIfAbsentOrOwned(ctx, record, expected); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Disconnect tombstones the record for the key. Disconnecting an absent or
// already-disconnected peer is a successful no-op; the returned record
// summarizes what was torn down.
func (e *Engine) Disconnect(ctx context.Context, did, peerID string) (record Record, err error) {
	defer func(begin time.Time) {
		zerolog.Ctx(ctx).Info().
			Dur("elapsed", time.Since(begin)).
			Err(err).
			Str("did", did).
			Str("peer_id", peerID).
			Msg("disconnect")
	}(time.Now())

	if did == "" || peerID == "" {
		return Record{}, fmt.Errorf("%w: did and peerId are required", ErrInvalidRequest)
	}

	record, err = e.disconnectOnce(ctx, did, peerID)
	if errors.Is(err, ErrConflict) {
		record, err = e.disconnectOnce(ctx, did, peerID)
		if errors.Is(err, ErrConflict) {
			return Record{}, fmt.Errorf("disconnect %v/%v: %w", did, peerID, ErrContention)
		}
	}
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (e *Engine) disconnectOnce(ctx context.Context, did, peerID string) (Record, error) {
	existing, err := e.Store.Get(ctx, did, peerID)
	if errors.Is(err, ErrNotFound) {
		return Record{DID: did, PeerID: peerID, State: StateDisconnected}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("disconnect %v/%v: %w", did, peerID, err)
	}
	if !existing.Live() {
		return existing, nil
	}

	tombstone := NewTombstone(existing, e.now(), e.retention())
	if err := e.Store.MarkDisconnected(ctx, tombstone, existing.UpdatedAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			// swept or deleted out from under us; same outcome
			return Record{DID: did, PeerID: peerID, State: StateDisconnected}, nil
		}
		return Record{}, err
	}
	return tombstone, nil
}

// Status reports the current state of the key without mutating it. Absent,
// tombstoned, and expired-but-unswept records all read as DISCONNECTED;
// reclaiming expired records is the sweeper's job.
func (e *Engine) Status(ctx context.Context, did, peerID string) (Record, error) {
	if did == "" || peerID == "" {
		return Record{}, fmt.Errorf("%w: did and peerId are required", ErrInvalidRequest)
	}

	existing, err := e.Store.Get(ctx, did, peerID)
	if errors.Is(err, ErrNotFound) {
		return Record{DID: did, PeerID: peerID, State: StateDisconnected}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("status %v/%v: %w", did, peerID, err)
	}
	if !existing.Live() || existing.Expired(e.now()) {
		return Record{DID: did, PeerID: peerID, State: StateDisconnected}, nil
	}
	return existing, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) retention() time.Duration {
	if e.Retention > 0 {
		return e.Retention
	}
	return DefaultRetention
}
