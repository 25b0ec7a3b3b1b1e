package registry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tj/assert"
	"golang.org/x/sync/errgroup"

	"github.com/synapsed-me/synapsed-relay/registry"
	"github.com/synapsed-me/synapsed-relay/registry/memdao"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// faultStore injects a bounded number of conflicts ahead of the real store.
type faultStore struct {
	registry.Store
	putConflicts  int32
	markConflicts int32
}

func (f *faultStore) PutIfAbsentOrOwned(ctx context.Context, record registry.Record, expectedUpdatedAt int64) error {
	if atomic.AddInt32(&f.putConflicts, -1) >= 0 {
		return registry.ErrConflict
	}
	return f.Store.PutIfAbsentOrOwned(ctx, record, expectedUpdatedAt)
}

func (f *faultStore) MarkDisconnected(ctx context.Context, tombstone registry.Record, expectedUpdatedAt int64) error {
	if atomic.AddInt32(&f.markConflicts, -1) >= 0 {
		return registry.ErrConflict
	}
	return f.Store.MarkDisconnected(ctx, tombstone, expectedUpdatedAt)
}

func newEngine() (*registry.Engine, *memdao.DAO, *clock) {
	c := &clock{now: time.Unix(1700000000, 0)}
	dao := memdao.New()
	engine := registry.NewEngine(dao)
	engine.Now = c.Now
	return engine, dao, c
}

func TestConnect_IdempotentRefresh(t *testing.T) {
	ctx := context.Background()
	engine, dao, c := newEngine()

	first, err := engine.Connect(ctx, registry.ConnectRequest{DID: "did:example:1", PeerID: "peerA", TTL: 30 * time.Second})
	assert.Nil(t, err)
	assert.Equal(t, registry.StateConnected, first.State)
	assert.Equal(t, c.now.Add(30*time.Second).Unix(), first.ExpiresAt)
	assert.NotEmpty(t, first.ConnectionID)

	c.Advance(5 * time.Second)

	second, err := engine.Connect(ctx, registry.ConnectRequest{DID: "did:example:1", PeerID: "peerA", TTL: 30 * time.Second})
	assert.Nil(t, err)
	assert.Equal(t, registry.StateConnected, second.State)
	assert.Equal(t, first.ConnectionID, second.ConnectionID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.ExpiresAt >= first.ExpiresAt)
	assert.True(t, second.UpdatedAt > first.UpdatedAt)
	assert.Equal(t, 1, dao.Len())
}

func TestConnect_InvalidRequest(t *testing.T) {
	ctx := context.Background()
	engine, dao, _ := newEngine()

	_, err := engine.Connect(ctx, registry.ConnectRequest{DID: "", PeerID: "p1", TTL: 60 * time.Second})
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))

	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "", TTL: 60 * time.Second})
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))

	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 0})
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))

	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: -time.Second})
	assert.True(t, errors.Is(err, registry.ErrInvalidRequest))

	// invalid requests cause no store mutation
	assert.Equal(t, 0, dao.Len())
}

func TestDisconnect_Idempotent(t *testing.T) {
	ctx := context.Background()
	engine, dao, c := newEngine()

	// disconnecting a peer that never connected is a successful no-op
	record, err := engine.Disconnect(ctx, "did:example:1", "peerA")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)
	assert.Equal(t, 0, dao.Len())

	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "did:example:1", PeerID: "peerA", TTL: 30 * time.Second})
	assert.Nil(t, err)

	c.Advance(time.Second)

	record, err = engine.Disconnect(ctx, "did:example:1", "peerA")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)

	// repeated disconnect on the tombstone succeeds
	record, err = engine.Disconnect(ctx, "did:example:1", "peerA")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)
}

func TestConnect_RoundTrip(t *testing.T) {
	ctx := context.Background()
	engine, dao, c := newEngine()

	first, err := engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 60 * time.Second})
	assert.Nil(t, err)

	c.Advance(time.Second)
	_, err = engine.Disconnect(ctx, "d1", "p1")
	assert.Nil(t, err)

	c.Advance(time.Second)
	third, err := engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 60 * time.Second})
	assert.Nil(t, err)
	assert.Equal(t, registry.StateConnected, third.State)
	assert.NotEqual(t, first.CreatedAt, third.CreatedAt)
	assert.NotEqual(t, first.ConnectionID, third.ConnectionID)
	assert.Equal(t, 1, dao.Len())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	engine, dao, c := newEngine()

	record, err := engine.Status(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)

	connected, err := engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 30 * time.Second})
	assert.Nil(t, err)

	record, err = engine.Status(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateConnected, record.State)
	assert.Equal(t, connected.ConnectionID, record.ConnectionID)

	// expired but unswept reads as disconnected without mutating the store
	c.Advance(31 * time.Second)
	record, err = engine.Status(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)

	raw, err := dao.Get(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.True(t, raw.Live())
}

func TestConnect_RetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newEngine()

	faults := &faultStore{Store: engine.Store, putConflicts: 1}
	engine.Store = faults

	record, err := engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 30 * time.Second})
	assert.Nil(t, err)
	assert.Equal(t, registry.StateConnected, record.State)

	faults.putConflicts = 2
	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p2", TTL: 30 * time.Second})
	assert.True(t, errors.Is(err, registry.ErrContention))
}

func TestDisconnect_RetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newEngine()

	_, err := engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 30 * time.Second})
	assert.Nil(t, err)

	faults := &faultStore{Store: engine.Store, markConflicts: 1}
	engine.Store = faults

	record, err := engine.Disconnect(ctx, "d1", "p1")
	assert.Nil(t, err)
	assert.Equal(t, registry.StateDisconnected, record.State)

	_, err = engine.Connect(ctx, registry.ConnectRequest{DID: "d1", PeerID: "p1", TTL: 30 * time.Second})
	assert.Nil(t, err)

	faults.markConflicts = 2
	_, err = engine.Disconnect(ctx, "d1", "p1")
	assert.True(t, errors.Is(err, registry.ErrContention))
}

func TestConnect_Concurrent(t *testing.T) {
	ctx := context.Background()
	dao := memdao.New()
	engine := registry.NewEngine(dao)

	var (
		mu      sync.Mutex
		results []error
	)
	group := &errgroup.Group{}
	for i := 0; i < 16; i++ {
		group.Go(func() error {
			_, err := engine.Connect(ctx, registry.ConnectRequest{DID: "did:example:1", PeerID: "peerA", TTL: 60 * time.Second})
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
			return nil
		})
	}
	assert.Nil(t, group.Wait())

	// every caller gets a definite outcome: success, or contention it can
	// safely retry; the race leaves exactly one live record
	var successes int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, registry.ErrContention))
	}
	assert.True(t, successes >= 1)
	assert.Equal(t, 1, dao.Len())

	record, err := dao.Get(ctx, "did:example:1", "peerA")
	assert.Nil(t, err)
	assert.True(t, record.Live())
}
