package memdao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tj/assert"

	"github.com/synapsed-me/synapsed-relay/registry"
)

func TestPutIfAbsentOrOwned(t *testing.T) {
	ctx := context.Background()
	dao := New()

	live := registry.Record{
		DID:       "d1",
		PeerID:    "p1",
		State:     registry.StateConnected,
		UpdatedAt: 100,
		ExpiresAt: 1000,
	}

	// absent key: create
	err := dao.PutIfAbsentOrOwned(ctx, live, 0)
	assert.Nil(t, err)

	// live record blocks a second unconditional create
	err = dao.PutIfAbsentOrOwned(ctx, live, 0)
	assert.True(t, errors.Is(err, registry.ErrConflict))

	// owner refresh with the current token succeeds
	refreshed := live
	refreshed.UpdatedAt = 200
	err = dao.PutIfAbsentOrOwned(ctx, refreshed, 100)
	assert.Nil(t, err)

	// a stale token conflicts
	err = dao.PutIfAbsentOrOwned(ctx, refreshed, 100)
	assert.True(t, errors.Is(err, registry.ErrConflict))

	// tombstones count as absent
	tombstone := refreshed
	tombstone.State = registry.StateDisconnected
	tombstone.UpdatedAt = 300
	err = dao.MarkDisconnected(ctx, tombstone, 200)
	assert.Nil(t, err)

	resurrected := live
	resurrected.UpdatedAt = 400
	err = dao.PutIfAbsentOrOwned(ctx, resurrected, 0)
	assert.Nil(t, err)
}

func TestMarkDisconnected(t *testing.T) {
	ctx := context.Background()
	dao := New()

	err := dao.MarkDisconnected(ctx, registry.Record{DID: "d1", PeerID: "p1"}, 100)
	assert.True(t, errors.Is(err, registry.ErrNotFound))

	live := registry.Record{DID: "d1", PeerID: "p1", State: registry.StateConnected, UpdatedAt: 100}
	assert.Nil(t, dao.PutIfAbsentOrOwned(ctx, live, 0))

	tombstone := live
	tombstone.State = registry.StateDisconnected
	tombstone.UpdatedAt = 200

	err = dao.MarkDisconnected(ctx, tombstone, 999)
	assert.True(t, errors.Is(err, registry.ErrConflict))

	err = dao.MarkDisconnected(ctx, tombstone, 100)
	assert.Nil(t, err)

	record, err := dao.Get(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.False(t, record.Live())
}

func TestScanExpired(t *testing.T) {
	ctx := context.Background()
	dao := New()
	now := time.Unix(1700000000, 0)

	put := func(did, peerID string, expiresAt int64) {
		err := dao.PutIfAbsentOrOwned(ctx, registry.Record{
			DID:       did,
			PeerID:    peerID,
			State:     registry.StateConnected,
			UpdatedAt: 1,
			ExpiresAt: expiresAt,
		}, 0)
		assert.Nil(t, err)
	}

	put("d1", "p1", now.Unix()-10)
	put("d1", "p2", now.Unix())
	put("d2", "p1", now.Unix()+100)

	keys, err := dao.ScanExpired(ctx, now)
	assert.Nil(t, err)
	assert.Equal(t, []registry.Key{
		{DID: "d1", PeerID: "p1"},
		{DID: "d1", PeerID: "p2"},
	}, keys)
}

func TestDeleteIfDisconnected(t *testing.T) {
	ctx := context.Background()
	dao := New()

	err := dao.DeleteIfDisconnected(ctx, "d1", "p1")
	assert.True(t, errors.Is(err, registry.ErrNotFound))

	live := registry.Record{DID: "d1", PeerID: "p1", State: registry.StateConnected, UpdatedAt: 100}
	assert.Nil(t, dao.PutIfAbsentOrOwned(ctx, live, 0))

	// live records are not eligible
	err = dao.DeleteIfDisconnected(ctx, "d1", "p1")
	assert.True(t, errors.Is(err, registry.ErrNotFound))

	tombstone := live
	tombstone.State = registry.StateDisconnected
	tombstone.UpdatedAt = 200
	assert.Nil(t, dao.MarkDisconnected(ctx, tombstone, 100))

	assert.Nil(t, dao.DeleteIfDisconnected(ctx, "d1", "p1"))
	assert.Equal(t, 0, dao.Len())

	_, err = dao.Get(ctx, "d1", "p1")
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}
