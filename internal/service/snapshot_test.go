package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnstats/internal/graph"
	"lnstats/internal/storage"
)

func testSnapshot() graph.Snapshot {
	return graph.Snapshot{
		Nodes: []graph.Node{{PubKey: "A"}, {PubKey: "B"}, {PubKey: "C"}},
		Channels: []graph.Channel{
			{ID: 1, Node1Pub: "A", Node2Pub: "B", Capacity: 1_000},
			{ID: 2, Node1Pub: "B", Node2Pub: "C", Capacity: 2_500},
		},
	}
}

func TestSnapshotJobAppendsSample(t *testing.T) {
	store := newMemStore()
	src := &staticGraph{snapshot: testSnapshot()}

	job := NewSnapshotJob(store, src, testMarker, zerolog.Nop())
	status, err := job.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	require.Len(t, store.network, 1)
	got := store.network[0]
	assert.Equal(t, testNow, got.Added)
	assert.Equal(t, int64(2), got.ChannelCount)
	assert.Equal(t, int64(3), got.NodeCount)
	assert.Equal(t, int64(3_500), got.TotalCapacity)
	assert.Empty(t, store.state, "the snapshot job never writes the marker")
}

func TestSnapshotJobSkipsWhenMarkerIsToday(t *testing.T) {
	store := newMemStore()
	store.state[testMarker] = storage.DateKey(testNow)
	src := &staticGraph{snapshot: testSnapshot()}

	status, err := NewSnapshotJob(store, src, testMarker, zerolog.Nop()).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Empty(t, store.network)
	assert.Zero(t, src.calls)
}

func TestSnapshotJobSkipsWhenDayAlreadyRecorded(t *testing.T) {
	store := newMemStore()
	store.network = []storage.NetworkStatsSample{{Added: storage.DayStart(testNow)}}
	src := &staticGraph{snapshot: testSnapshot()}

	status, err := NewSnapshotJob(store, src, testMarker, zerolog.Nop()).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Len(t, store.network, 1)
	assert.Zero(t, src.calls)
}

func TestSnapshotJobGraphFailure(t *testing.T) {
	store := newMemStore()
	src := &staticGraph{err: errors.New("unavailable")}

	status, err := NewSnapshotJob(store, src, testMarker, zerolog.Nop()).Run(context.Background(), testNow)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Empty(t, store.network)
}
