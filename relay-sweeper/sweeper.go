// Package relaysweeper reclaims expired peer connection records on a fixed
// interval, independent of client traffic.
package relaysweeper

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
	"github.com/synapsed-me/synapsed-relay/registry"
)

const defaultParallelism = 8

// Handler runs sweep cycles over the connection record store. Expired live
// records are tombstoned; tombstones past their retention window are
// physically removed. Per-key failures are logged and skipped, never
// aborting a cycle.
type Handler struct {
	service relaycli.Service
	logger  zerolog.Logger
	store   registry.Store

	Interval    time.Duration
	Retention   time.Duration    // tombstone retention (default registry.DefaultRetention)
	Parallelism int              // concurrent per-key workers (default 8)
	Metrics     *relaycli.Metrics
	Now         func() time.Time // clock override for tests
}

func NewHandler(service relaycli.Service, store registry.Store, interval time.Duration) *Handler {
	return &Handler{
		service:  service,
		logger:   relaycli.Logger(service),
		store:    store,
		Interval: interval,
	}
}

// RunOnce is the Lambda entrypoint for a scheduled invocation.
func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	ctx = h.logger.WithContext(ctx)
	_, err := h.Sweep(ctx)
	return err
}

// Start runs sweep cycles on the configured interval in console mode, or
// hands control to the Lambda runtime where the schedule owns the cadence.
func (h *Handler) Start() error {
	switch {
	case relaycli.CommonOpts.Console:
		ctx := h.logger.WithContext(context.Background())
		ticker := time.NewTicker(h.Interval)
		defer ticker.Stop()
		for {
			if _, err := h.Sweep(ctx); err != nil {
				h.logger.Error().Err(err).Msg("sweep cycle failed")
			}
			<-ticker.C
		}

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}

// Sweep performs a single cycle and returns the number of records reclaimed
// (tombstoned or removed).
func (h *Handler) Sweep(ctx context.Context) (reclaimed int64, err error) {
	defer func(begin time.Time) {
		zerolog.Ctx(ctx).Info().
			Dur("elapsed", time.Since(begin)).
			Err(err).
			Int64("reclaimed", reclaimed).
			Msg("sweep complete")
	}(time.Now())

	keys, err := h.store.ScanExpired(ctx, h.now())
	if err != nil {
		return 0, err
	}

	parallelism := h.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	var counter int64
	group := &errgroup.Group{}
	group.SetLimit(parallelism)
	for _, key := range keys {
		key := key
		group.Go(func() error {
			if h.sweepKey(ctx, key) {
				atomic.AddInt64(&counter, 1)
			}
			return nil
		})
	}
	group.Wait()

	reclaimed = atomic.LoadInt64(&counter)
	if h.Metrics != nil && reclaimed > 0 {
		h.Metrics.Gauge(ctx, relaycli.SweptRecordsMetric, float64(reclaimed))
	}
	return reclaimed, nil
}

func (h *Handler) sweepKey(ctx context.Context, key registry.Key) bool {
	logger := zerolog.Ctx(ctx).With().
		Str("did", key.DID).
		Str("peer_id", key.PeerID).
		Logger()

	rec, err := h.store.Get(ctx, key.DID, key.PeerID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return false // already reclaimed
	case err != nil:
		logger.Warn().Err(err).Msg("sweep lookup failed, skipping key")
		return false
	}

	now := h.now()
	if !rec.Expired(now) {
		return false // refreshed since the scan
	}

	if rec.Live() {
		tombstone := registry.NewTombstone(rec, now, h.retention())
		if err := h.store.MarkDisconnected(ctx, tombstone, rec.UpdatedAt); err != nil {
			// the client refreshed or disconnected concurrently; next cycle
			// will see the result
			logger.Debug().Err(err).Msg("expire lost a race, skipping key")
			return false
		}
		logger.Info().Msg("expired stale peer connection")
		return true
	}

	if err := h.store.DeleteIfDisconnected(ctx, key.DID, key.PeerID); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			logger.Warn().Err(err).Msg("tombstone delete failed, skipping key")
		}
		return false
	}
	logger.Info().Msg("removed tombstoned peer connection")
	return true
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) retention() time.Duration {
	if h.Retention > 0 {
		return h.Retention
	}
	return registry.DefaultRetention
}
