package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"lnstats/internal/graph"
	"lnstats/internal/logging"
	"lnstats/internal/storage"
)

// GraphSyncJob mirrors the live gossip graph into the nodes and channels tables.
type GraphSyncJob struct {
	store  storage.GraphStore
	source graph.Source
	logger zerolog.Logger
}

// NewGraphSyncJob constructs a GraphSyncJob.
func NewGraphSyncJob(store storage.GraphStore, source graph.Source, logger zerolog.Logger) *GraphSyncJob {
	return &GraphSyncJob{
		store:  store,
		source: source,
		logger: logger.With().Str("component", "graph_sync").Logger(),
	}
}

// Name implements Task.
func (j *GraphSyncJob) Name() string { return "graph_sync" }

// Run implements Task. An empty graph is treated as a source problem and
// never closes stored channels.
func (j *GraphSyncJob) Run(ctx context.Context, now time.Time) (Status, error) {
	logger := logging.ForCycle(ctx, j.logger).With().Str("task", j.Name()).Logger()

	snapshot, err := j.source.FetchGraph(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("fetch graph: %w", err)
	}
	if len(snapshot.Channels) == 0 {
		logger.Warn().Int("nodes", len(snapshot.Nodes)).Msg("graph has no channels, sync skipped")
		return StatusSkipped, nil
	}

	nodes, channels := GraphRows(snapshot)
	closed, err := j.store.SyncGraph(ctx, nodes, channels, now)
	if err != nil {
		return StatusFailed, fmt.Errorf("sync graph: %w", err)
	}

	logger.Info().
		Int("nodes", len(nodes)).
		Int("channels", len(channels)).
		Int64("closed", closed).
		Msg("graph synced")
	return StatusCompleted, nil
}

// GraphRows maps a graph snapshot onto node and channel rows. Timestamps are
// left zero so the store keeps existing first_seen and created values.
func GraphRows(snapshot graph.Snapshot) ([]storage.Node, []storage.Channel) {
	nodes := make([]storage.Node, 0, len(snapshot.Nodes))
	for _, n := range snapshot.Nodes {
		if n.PubKey == "" {
			continue
		}
		nodes = append(nodes, storage.Node{PublicKey: n.PubKey, Alias: n.Alias})
	}

	channels := make([]storage.Channel, 0, len(snapshot.Channels))
	for _, c := range snapshot.Channels {
		ch := storage.Channel{
			ID:             strconv.FormatUint(c.ID, 10),
			Node1PublicKey: c.Node1Pub,
			Node2PublicKey: c.Node2Pub,
			Capacity:       c.Capacity,
			Status:         storage.ChannelActive,
		}
		if c.Disabled() {
			ch.Status = storage.ChannelInactive
		}
		if p := c.Node1Policy; p != nil {
			ch.Node1FeeRate = p.FeeRateMilliMsat
			ch.Node1BaseFee = p.FeeBaseMsat
		}
		if p := c.Node2Policy; p != nil {
			ch.Node2FeeRate = p.FeeRateMilliMsat
			ch.Node2BaseFee = p.FeeBaseMsat
		}
		channels = append(channels, ch)
	}
	return nodes, channels
}
