package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnstats/internal/graph"
	"lnstats/internal/storage"
)

func TestGraphRowsMapsPolicies(t *testing.T) {
	nodes, channels := GraphRows(graph.Snapshot{
		Nodes: []graph.Node{{PubKey: "A", Alias: "alpha"}, {PubKey: ""}},
		Channels: []graph.Channel{
			{
				ID:          869947529528983553,
				Node1Pub:    "A",
				Node2Pub:    "B",
				Capacity:    5_000_000,
				Node1Policy: &graph.Policy{FeeRateMilliMsat: 15, FeeBaseMsat: 1000},
				Node2Policy: &graph.Policy{FeeRateMilliMsat: 40, FeeBaseMsat: 0},
			},
			{
				ID:          42,
				Node1Pub:    "B",
				Node2Pub:    "A",
				Capacity:    20_000,
				Node1Policy: &graph.Policy{Disabled: true},
			},
		},
	})

	require.Equal(t, []storage.Node{{PublicKey: "A", Alias: "alpha"}}, nodes)
	require.Len(t, channels, 2)

	first := channels[0]
	assert.Equal(t, "869947529528983553", first.ID)
	assert.Equal(t, storage.ChannelActive, first.Status)
	assert.Equal(t, int64(15), first.Node1FeeRate)
	assert.Equal(t, int64(1000), first.Node1BaseFee)
	assert.Equal(t, int64(40), first.Node2FeeRate)
	assert.Zero(t, first.Node2BaseFee)
	assert.True(t, first.Created.IsZero())

	second := channels[1]
	assert.Equal(t, storage.ChannelInactive, second.Status)
	assert.Zero(t, second.Node2FeeRate)
}

func TestGraphSyncJobUpsertsAndClosesMissing(t *testing.T) {
	store := newMemStore()
	earlier := testNow.AddDate(0, -1, 0)
	store.nodes = []storage.Node{{PublicKey: "A", Alias: "old", FirstSeen: earlier}}
	store.channels = []storage.Channel{
		{ID: "1", Node1PublicKey: "A", Node2PublicKey: "B", Capacity: 1_000, Created: earlier, Status: storage.ChannelActive},
		{ID: "99", Node1PublicKey: "A", Node2PublicKey: "C", Capacity: 700, Created: earlier, Status: storage.ChannelActive},
	}
	src := &staticGraph{snapshot: testSnapshot()}

	job := NewGraphSyncJob(store, src, zerolog.Nop())
	status, err := job.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	require.Len(t, store.nodes, 3)
	assert.Equal(t, earlier, store.nodes[0].FirstSeen, "first_seen is kept")
	assert.Equal(t, testNow, store.nodes[1].FirstSeen)

	byID := map[string]storage.Channel{}
	for _, ch := range store.channels {
		byID[ch.ID] = ch
	}
	assert.Equal(t, earlier, byID["1"].Created)
	assert.Equal(t, testNow, byID["2"].Created)
	assert.Equal(t, storage.ChannelClosed, byID["99"].Status)
	require.NotNil(t, byID["99"].ClosingDate)
	assert.Equal(t, testNow, *byID["99"].ClosingDate)
}

func TestGraphSyncJobFeedsNodeStats(t *testing.T) {
	store := newMemStore()
	src := &staticGraph{snapshot: graph.Snapshot{
		Nodes: []graph.Node{{PubKey: "A"}, {PubKey: "B"}},
		Channels: []graph.Channel{
			{ID: 1, Node1Pub: "A", Node2Pub: "B", Capacity: 100, Node1Policy: &graph.Policy{FeeRateMilliMsat: 5}},
			{ID: 2, Node1Pub: "B", Node2Pub: "A", Capacity: 200, Node2Policy: &graph.Policy{FeeRateMilliMsat: 15}},
		},
	}}

	_, err := NewGraphSyncJob(store, src, zerolog.Nop()).Run(context.Background(), testNow)
	require.NoError(t, err)

	status, err := NewNodeStatsJob(store, testMarker, 1, zerolog.Nop()).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	var a storage.NodeStatsSample
	for _, s := range store.nodeStats {
		if s.PublicKey == "A" {
			a = s
		}
	}
	assert.Equal(t, int64(300), a.Capacity)
	assert.True(t, decimal.NewFromInt(10).Equal(a.AvgFeeRate), "avg fee rate %s", a.AvgFeeRate)
	assert.Equal(t, int64(15), a.MedFeeRate)
}

func TestGraphSyncJobEmptyGraphClosesNothing(t *testing.T) {
	store := newMemStore()
	store.channels = []storage.Channel{{ID: "1", Capacity: 1, Created: testNow, Status: storage.ChannelActive}}
	src := &staticGraph{snapshot: graph.Snapshot{Nodes: []graph.Node{{PubKey: "A"}}}}

	status, err := NewGraphSyncJob(store, src, zerolog.Nop()).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Equal(t, storage.ChannelActive, store.channels[0].Status)
	assert.Empty(t, store.nodes)
}

func TestGraphSyncJobFailures(t *testing.T) {
	t.Run("graph", func(t *testing.T) {
		store := newMemStore()
		src := &staticGraph{err: errors.New("unavailable")}
		status, err := NewGraphSyncJob(store, src, zerolog.Nop()).Run(context.Background(), testNow)
		require.ErrorContains(t, err, "unavailable")
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("store", func(t *testing.T) {
		store := newMemStore()
		store.failSync = errors.New("connection reset")
		src := &staticGraph{snapshot: testSnapshot()}
		status, err := NewGraphSyncJob(store, src, zerolog.Nop()).Run(context.Background(), testNow)
		require.ErrorContains(t, err, "connection reset")
		assert.Equal(t, StatusFailed, status)
	})
}

func TestServiceRunsGraphSyncFirstWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Graph.Sync = true
	cfg.Graph.Source = "lnd"

	svc, err := New(cfg, nil, newMemStore(), &staticGraph{snapshot: testSnapshot()}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, svc.Tasks(), 4)
	assert.Equal(t, "graph_sync", svc.Tasks()[0].Name())

	cfg.Graph.Source = "none"
	svc, err = New(cfg, nil, newMemStore(), graph.Disabled{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, svc.Tasks(), 3)
}
