package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lnstats/internal/graph"
	"lnstats/internal/logging"
	"lnstats/internal/metrics"
	"lnstats/internal/storage"
)

type snapshotStore interface {
	storage.NetworkStatsStore
	storage.StateStore
}

// SnapshotJob appends one network-wide sample per day from the live graph.
type SnapshotJob struct {
	store  snapshotStore
	source graph.Source
	marker string
	logger zerolog.Logger
}

// NewSnapshotJob constructs a SnapshotJob gated on the node stats marker.
func NewSnapshotJob(store snapshotStore, source graph.Source, marker string, logger zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		store:  store,
		source: source,
		marker: marker,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Name implements Task.
func (j *SnapshotJob) Name() string { return "daily_snapshot" }

// Run implements Task. The marker is left for the node stats job to set.
func (j *SnapshotJob) Run(ctx context.Context, now time.Time) (Status, error) {
	logger := logging.ForCycle(ctx, j.logger).With().Str("task", j.Name()).Logger()
	today := storage.DateKey(now)

	last, err := j.store.GetState(ctx, j.marker)
	if err != nil {
		return StatusFailed, fmt.Errorf("read marker %s: %w", j.marker, err)
	}
	if last == today {
		logger.Debug().Str("marker", last).Msg("already processed today")
		return StatusSkipped, nil
	}

	exists, err := j.store.HasNetworkStatsOn(ctx, now)
	if err != nil {
		return StatusFailed, err
	}
	if exists {
		logger.Debug().Str("day", today).Msg("network sample already recorded today")
		return StatusSkipped, nil
	}

	snapshot, err := j.source.FetchGraph(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("fetch graph: %w", err)
	}

	sample := storage.NetworkStatsSample{
		Added:         now,
		ChannelCount:  int64(len(snapshot.Channels)),
		NodeCount:     int64(len(snapshot.Nodes)),
		TotalCapacity: snapshot.TotalCapacity(),
	}
	if err := j.store.InsertNetworkStats(ctx, sample); err != nil {
		return StatusFailed, fmt.Errorf("insert network stats: %w", err)
	}
	metrics.RecordNetworkSnapshot(sample.ChannelCount, sample.NodeCount, sample.TotalCapacity)

	logger.Info().
		Int64("channels", sample.ChannelCount).
		Int64("nodes", sample.NodeCount).
		Int64("capacity", sample.TotalCapacity).
		Msg("network snapshot recorded")
	return StatusCompleted, nil
}
