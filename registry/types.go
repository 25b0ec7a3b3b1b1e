// Package registry implements the peer connection registry: the authoritative
// owner of (did, peerId) connection records and their lifecycle.
package registry

import "time"

// Connection record states.
const (
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
)

// Key identifies a single peer connection record.
type Key struct {
	DID    string
	PeerID string
}

// Record is a peer connection tracked by the registry.
//
// CreatedAt and UpdatedAt are unix nanoseconds; UpdatedAt doubles as the
// optimistic concurrency token for conditional writes. ExpiresAt is unix
// seconds so that it can serve directly as the storage-layer TTL attribute.
type Record struct {
	DID          string
	PeerID       string
	State        string
	ConnectionID string
	Endpoint     string
	CreatedAt    int64
	UpdatedAt    int64
	ExpiresAt    int64
}

func (r Record) Key() Key {
	return Key{DID: r.DID, PeerID: r.PeerID}
}

// Live reports whether the record represents an active connection rather
// than a tombstone.
func (r Record) Live() bool {
	return r.State == StateConnected
}

// Expired reports whether the record is past its expiry marker.
func (r Record) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// NewTombstone derives the DISCONNECTED form of an existing record. The
// expiry marker is rewritten to now+retention so the tombstone is reclaimed
// after a grace period.
func NewTombstone(existing Record, now time.Time, retention time.Duration) Record {
	tombstone := existing
	tombstone.State = StateDisconnected
	tombstone.UpdatedAt = now.UnixNano()
	if tombstone.UpdatedAt <= existing.UpdatedAt {
		tombstone.UpdatedAt = existing.UpdatedAt + 1
	}
	tombstone.ExpiresAt = now.Add(retention).Unix()
	return tombstone
}
