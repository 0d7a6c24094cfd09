// Package syncer drives one full synchronization pass: fetch both
// upstream sources, normalize every record, upsert each into the store.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/btcplaces/btcplaces/internal/model"
	"github.com/btcplaces/btcplaces/internal/normalize"
	"github.com/btcplaces/btcplaces/internal/source/btcmap"
	"github.com/btcplaces/btcplaces/internal/source/overpass"
	"github.com/btcplaces/btcplaces/internal/store"
)

// OverpassClient fetches the OSM query interface.
type OverpassClient interface {
	Fetch(ctx context.Context, q overpass.Query) (*overpass.Response, error)
}

// BTCMapClient fetches the aggregator feed.
type BTCMapClient interface {
	Fetch(ctx context.Context) ([]btcmap.Place, error)
}

// Options tunes a Syncer.
type Options struct {
	// Workers bounds per-element upsert parallelism. Upserts are
	// independent and atomic per row, so order within a batch is free.
	Workers int

	// OverpassQuery is the budget for the full-planet query; wider than
	// the client defaults because the global predicate is expensive.
	OverpassQuery overpass.Query
}

// Syncer runs passes. Call order is the precedence contract: Overpass
// first, the aggregator feed second, so the aggregator's curated envelope
// wins whenever both upstreams describe the same id in one pass.
type Syncer struct {
	store    store.Store
	overpass OverpassClient
	btcmap   BTCMapClient
	opts     Options
}

// New creates a Syncer.
func New(st store.Store, op OverpassClient, bm BTCMapClient, opts Options) *Syncer {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.OverpassQuery.TimeoutSecs <= 0 {
		opts.OverpassQuery.TimeoutSecs = 300
	}
	if opts.OverpassQuery.MaxSizeBytes <= 0 {
		opts.OverpassQuery.MaxSizeBytes = 2 << 30
	}
	return &Syncer{store: st, overpass: op, btcmap: bm, opts: opts}
}

// Run executes one pass. A whole-source fetch failure aborts the pass at
// that point and is returned; per-element upsert failures are logged,
// counted and skipped. Every pass outcome is recorded in the audit log.
func (s *Syncer) Run(ctx context.Context) (*model.SyncPass, error) {
	log := zap.L().With(zap.String("component", "syncer"))
	pass := model.SyncPass{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	resp, err := s.overpass.Fetch(ctx, s.opts.OverpassQuery)
	if err != nil {
		return s.abort(ctx, log, pass, err)
	}
	pass.OverpassReceived = len(resp.Elements)

	locs := make([]model.Location, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		locs = append(locs, normalize.OverpassElement(el))
	}
	pass.OverpassUpserted = s.upsertBatch(ctx, log, locs)

	places, err := s.btcmap.Fetch(ctx)
	if err != nil {
		return s.abort(ctx, log, pass, err)
	}
	pass.BTCMapReceived = len(places)

	locs = locs[:0]
	skipped := 0
	for _, p := range places {
		if p.Deleted() {
			skipped++
			continue
		}
		locs = append(locs, normalize.BTCMapPlace(p))
	}
	if skipped > 0 {
		log.Debug("skipped tombstoned places", zap.Int("count", skipped))
	}
	pass.BTCMapUpserted = s.upsertBatch(ctx, log, locs)

	pass.Status = model.PassStatusComplete
	pass.FinishedAt = time.Now().UTC()
	s.record(ctx, log, pass)

	log.Info("sync pass complete",
		zap.Int("overpass_received", pass.OverpassReceived),
		zap.Int("overpass_upserted", pass.OverpassUpserted),
		zap.Int("btcmap_received", pass.BTCMapReceived),
		zap.Int("btcmap_upserted", pass.BTCMapUpserted),
		zap.Duration("elapsed", pass.FinishedAt.Sub(pass.StartedAt)),
	)
	return &pass, nil
}

// upsertBatch writes a batch with skip-and-continue semantics: a single
// malformed element must not block the rest.
func (s *Syncer) upsertBatch(ctx context.Context, log *zap.Logger, locs []model.Location) int {
	var upserted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, loc := range locs {
		g.Go(func() error {
			if err := s.store.UpsertLocation(gctx, loc); err != nil {
				log.Warn("upsert failed, skipping element",
					zap.Int64("id", loc.ID),
					zap.String("type", string(loc.Type)),
					zap.Error(err),
				)
				return nil // don't abort the batch on individual failure
			}
			upserted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(upserted.Load())
}

func (s *Syncer) abort(ctx context.Context, log *zap.Logger, pass model.SyncPass, err error) (*model.SyncPass, error) {
	pass.Status = model.PassStatusFailed
	pass.Error = err.Error()
	pass.FinishedAt = time.Now().UTC()
	s.record(ctx, log, pass)

	log.Error("sync pass aborted", zap.Error(err))
	return &pass, err
}

func (s *Syncer) record(ctx context.Context, log *zap.Logger, pass model.SyncPass) {
	if err := s.store.RecordSyncPass(ctx, pass); err != nil {
		log.Error("failed to record sync pass", zap.String("pass_id", pass.ID), zap.Error(err))
	}
}
