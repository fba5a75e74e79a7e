package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lnstats/internal/logging"
	"lnstats/internal/metrics"
	"lnstats/internal/stats"
	"lnstats/internal/storage"
)

type nodeStatsStore interface {
	storage.NodeStatsStore
	storage.StateStore
}

// NodeStatsJob writes one stats sample per node per day.
type NodeStatsJob struct {
	store    nodeStatsStore
	marker   string
	minNodes int
	logger   zerolog.Logger
}

// NewNodeStatsJob constructs a NodeStatsJob.
func NewNodeStatsJob(store nodeStatsStore, marker string, minNodes int, logger zerolog.Logger) *NodeStatsJob {
	return &NodeStatsJob{
		store:    store,
		marker:   marker,
		minNodes: minNodes,
		logger:   logger.With().Str("component", "node_stats").Logger(),
	}
}

// Name implements Task.
func (j *NodeStatsJob) Name() string { return "daily_node_stats" }

// Run implements Task. The marker is only advanced after every node is written,
// so an interrupted batch is redone in full on the next cycle.
func (j *NodeStatsJob) Run(ctx context.Context, now time.Time) (Status, error) {
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

	aggregates, err := j.store.ListNodeAggregates(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("list node aggregates: %w", err)
	}
	if len(aggregates) < j.minNodes {
		logger.Info().
			Int("nodes", len(aggregates)).
			Int("min_nodes", j.minNodes).
			Msg("not enough nodes for node stats")
		return StatusSkipped, nil
	}

	for _, agg := range aggregates {
		if err := ctx.Err(); err != nil {
			return StatusFailed, err
		}

		channels, err := j.store.ListChannelsForNode(ctx, agg.PublicKey)
		if err != nil {
			return StatusFailed, fmt.Errorf("list channels for %s: %w", agg.PublicKey, err)
		}

		sample := NodeSample(agg, channels, now)
		if err := j.store.InsertNodeStats(ctx, sample); err != nil {
			return StatusFailed, fmt.Errorf("insert node stats for %s: %w", agg.PublicKey, err)
		}
		metrics.IncNodeStatsWritten()
	}

	if err := j.store.SetState(ctx, j.marker, today); err != nil {
		return StatusFailed, fmt.Errorf("set marker %s: %w", j.marker, err)
	}

	logger.Info().Int("nodes", len(aggregates)).Str("day", today).Msg("node stats recorded")
	return StatusCompleted, nil
}

// NodeSample derives a node's stats row from its open-channel aggregate and
// every channel it has ever had.
func NodeSample(agg storage.NodeAggregate, channels []storage.Channel, at time.Time) storage.NodeStatsSample {
	fees := stats.Compute(stats.ForNode(agg.PublicKey, channels))
	return storage.NodeStatsSample{
		PublicKey:           agg.PublicKey,
		Added:               at,
		Capacity:            agg.Capacity(),
		Channels:            agg.Channels(),
		AvgFeeRate:          fees.AvgFeeRate,
		AvgBaseFee:          fees.AvgBaseFee,
		MedCapacity:         fees.MedCapacity,
		MedFeeRate:          fees.MedFeeRate,
		MedBaseFee:          fees.MedBaseFee,
		FeeRateDistribution: fees.Distribution,
	}
}

// AggregateChannels computes the open-channel aggregate for a node from its
// channel rows, matching what the store pre-aggregates.
func AggregateChannels(publicKey string, channels []storage.Channel) storage.NodeAggregate {
	agg := storage.NodeAggregate{PublicKey: publicKey}
	for _, ch := range channels {
		if !ch.Status.Open() {
			continue
		}
		if ch.Node1PublicKey == publicKey {
			agg.CountLeft++
			agg.CapacityLeft += ch.Capacity
		}
		if ch.Node2PublicKey == publicKey {
			agg.CountRight++
			agg.CapacityRight += ch.Capacity
		}
	}
	return agg
}
