package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/btcplaces/btcplaces/internal/fetcher"
	"github.com/btcplaces/btcplaces/internal/source/btcmap"
	"github.com/btcplaces/btcplaces/internal/source/overpass"
	"github.com/btcplaces/btcplaces/internal/store"
	"github.com/btcplaces/btcplaces/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass and exit",
	Long: `Run a single fetch-normalize-upsert pass across both upstream sources.

Fetches the Overpass query interface first, then the BTC Map aggregator
feed, upserting every record into the canonical store. Exits non-zero if
either whole-source fetch fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pass, err := buildSyncer(st).Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("sync finished",
			zap.String("pass_id", pass.ID),
			zap.Int("overpass_upserted", pass.OverpassUpserted),
			zap.Int("btcmap_upserted", pass.BTCMapUpserted),
		)
		return nil
	},
}

// buildSyncer wires the upstream clients to the configured store.
func buildSyncer(st store.Store) *syncer.Syncer {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	op := overpass.NewClient(f, overpass.WithBaseURL(cfg.Overpass.BaseURL))
	bm := btcmap.NewClient(f,
		btcmap.WithBaseURL(cfg.BTCMap.BaseURL),
		btcmap.WithTimeout(secs(cfg.BTCMap.TimeoutSecs)),
	)

	return syncer.New(st, op, bm, syncer.Options{
		Workers: cfg.Sync.Workers,
		OverpassQuery: overpass.Query{
			TimeoutSecs:  cfg.Sync.OverpassTimeoutSecs,
			MaxSizeBytes: cfg.Sync.OverpassMaxSizeBytes,
		},
	})
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
