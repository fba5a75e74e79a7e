package app

import (
	"context"
	"time"

	"lnstats/internal/service"
	"lnstats/internal/storage"
)

// Sync mirrors the configured graph source into the nodes and channels tables once.
func (a *App) Sync(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	source, closeSource, err := a.newGraphSource()
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	job := service.NewGraphSyncJob(storage.NewStoreWithMetrics(store), source, a.Logger)
	status, err := job.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	a.Logger.Info().Str("status", string(status)).Msg("graph sync finished")
	return nil
}
