// Package memdao provides an in-memory implementation of the registry store,
// used in console mode and by tests. The durable implementation is peerdao.
package memdao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/synapsed-me/synapsed-relay/registry"
)

type DAO struct {
	mu      sync.Mutex
	records map[registry.Key]registry.Record
}

func New() *DAO {
	return &DAO{
		records: map[registry.Key]registry.Record{},
	}
}

func (d *DAO) Get(ctx context.Context, did, peerID string) (registry.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.records[registry.Key{DID: did, PeerID: peerID}]
	if !ok {
		return registry.Record{}, fmt.Errorf("get %v/%v: %w", did, peerID, registry.ErrNotFound)
	}
	return record, nil
}

func (d *DAO) PutIfAbsentOrOwned(ctx context.Context, record registry.Record, expectedUpdatedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.records[record.Key()]
	switch {
	case expectedUpdatedAt == 0:
		if ok && existing.Live() {
			return fmt.Errorf("put %v/%v: live record exists: %w", record.DID, record.PeerID, registry.ErrConflict)
		}
	default:
		if !ok || !existing.Live() || existing.UpdatedAt != expectedUpdatedAt {
			return fmt.Errorf("put %v/%v: stale token: %w", record.DID, record.PeerID, registry.ErrConflict)
		}
	}

	d.records[record.Key()] = record
	return nil
}

func (d *DAO) MarkDisconnected(ctx context.Context, tombstone registry.Record, expectedUpdatedAt int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.records[tombstone.Key()]
	if !ok {
		return fmt.Errorf("mark disconnected %v/%v: %w", tombstone.DID, tombstone.PeerID, registry.ErrNotFound)
	}
	if existing.UpdatedAt != expectedUpdatedAt {
		return fmt.Errorf("mark disconnected %v/%v: stale token: %w", tombstone.DID, tombstone.PeerID, registry.ErrConflict)
	}

	d.records[tombstone.Key()] = tombstone
	return nil
}

func (d *DAO) ScanExpired(ctx context.Context, now time.Time) ([]registry.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var keys []registry.Key
	for key, record := range d.records {
		if record.ExpiresAt <= now.Unix() {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DID != keys[j].DID {
			return keys[i].DID < keys[j].DID
		}
		return keys[i].PeerID < keys[j].PeerID
	})
	return keys, nil
}

func (d *DAO) DeleteIfDisconnected(ctx context.Context, did, peerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := registry.Key{DID: did, PeerID: peerID}
	existing, ok := d.records[key]
	if !ok || existing.Live() {
		return fmt.Errorf("delete %v/%v: no tombstone: %w", did, peerID, registry.ErrNotFound)
	}

	delete(d.records, key)
	return nil
}

// Len reports the number of records physically present, tombstones included.
func (d *DAO) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}
