package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"lnstats/internal/graph"
	"lnstats/internal/storage"
)

// memStore is an in-memory storage.StatsStore.
type memStore struct {
	mu sync.Mutex

	nodes    []storage.Node
	channels []storage.Channel

	network   []storage.NetworkStatsSample
	nodeStats []storage.NodeStatsSample
	state     map[string]string

	failChannelsFor string
	failState       error
	failSeriesAt    int
	failNodeCounts  error
	failSync        error
	lockHeld        bool
	lockCalls       int
}

func newMemStore() *memStore {
	return &memStore{state: map[string]string{}}
}

func (m *memStore) CountNetworkStats(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.network)), nil
}

func (m *memStore) ListChannelHistory(context.Context) ([]storage.ChannelHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]storage.ChannelHistory, 0, len(m.channels))
	for _, ch := range m.channels {
		history = append(history, storage.ChannelHistory{Capacity: ch.Capacity, Created: ch.Created, ClosingDate: ch.ClosingDate})
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].Created.Before(history[j].Created) })
	return history, nil
}

func (m *memStore) ListNodeFirstSeen(context.Context) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make([]time.Time, 0, len(m.nodes))
	for _, n := range m.nodes {
		seen = append(seen, n.FirstSeen)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i].Before(seen[j]) })
	return seen, nil
}

func (m *memStore) InsertNetworkStats(_ context.Context, sample storage.NetworkStatsSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = append(m.network, sample)
	return nil
}

// BackfillNetworkStats applies the series to a copy and only keeps it when
// every write succeeds. failSeriesAt fails the n-th insert, counting from 1.
func (m *memStore) BackfillNetworkStats(_ context.Context, series []storage.NetworkStatsSample, nodeCounts []storage.NodeCountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.network) > 0 {
		return storage.ErrSeriesExists
	}

	staged := make([]storage.NetworkStatsSample, 0, len(series))
	for i, sample := range series {
		if m.failSeriesAt == i+1 {
			return errors.New("connection reset")
		}
		staged = append(staged, sample)
	}
	for _, u := range nodeCounts {
		if m.failNodeCounts != nil {
			return m.failNodeCounts
		}
		found := false
		for i := range staged {
			if staged[i].Added.Equal(u.Added) {
				staged[i].NodeCount = u.NodeCount
				found = true
				break
			}
		}
		if !found {
			return pgx.ErrNoRows
		}
	}
	m.network = staged
	return nil
}

func (m *memStore) SyncGraph(_ context.Context, nodes []storage.Node, channels []storage.Channel, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSync != nil {
		return 0, m.failSync
	}

	for _, n := range nodes {
		idx := -1
		for i := range m.nodes {
			if m.nodes[i].PublicKey == n.PublicKey {
				idx = i
				break
			}
		}
		if idx < 0 {
			if n.FirstSeen.IsZero() {
				n.FirstSeen = at
			}
			m.nodes = append(m.nodes, n)
			continue
		}
		m.nodes[idx].Alias = n.Alias
	}

	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		seen[ch.ID] = true
		idx := -1
		for i := range m.channels {
			if m.channels[i].ID == ch.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			if ch.Created.IsZero() {
				ch.Created = at
			}
			m.channels = append(m.channels, ch)
			continue
		}
		ch.Created = m.channels[idx].Created
		m.channels[idx] = ch
	}

	var closed int64
	if len(channels) > 0 {
		for i := range m.channels {
			if m.channels[i].Status.Open() && !seen[m.channels[i].ID] {
				m.channels[i].Status = storage.ChannelClosed
				m.channels[i].ClosingDate = ptrTime(at)
				closed++
			}
		}
	}
	return closed, nil
}

func (m *memStore) HasNetworkStatsOn(_ context.Context, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.network {
		if storage.DateKey(s.Added) == storage.DateKey(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListNodeAggregates(context.Context) ([]storage.NodeAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	aggs := make([]storage.NodeAggregate, 0, len(m.nodes))
	for _, n := range m.nodes {
		aggs = append(aggs, AggregateChannels(n.PublicKey, m.channels))
	}
	return aggs, nil
}

func (m *memStore) ListChannelsForNode(_ context.Context, publicKey string) ([]storage.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChannelsFor == publicKey {
		return nil, errors.New("connection reset")
	}
	var out []storage.Channel
	for _, ch := range m.channels {
		if ch.Node1PublicKey == publicKey || ch.Node2PublicKey == publicKey {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *memStore) InsertNodeStats(_ context.Context, sample storage.NodeStatsSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeStats = append(m.nodeStats, sample)
	return nil
}

func (m *memStore) GetState(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failState != nil {
		return "", m.failState
	}
	return m.state[name], nil
}

func (m *memStore) SetState(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[name] = value
	return nil
}

func (m *memStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	if m.lockHeld {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func (m *memStore) nodeStatsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodeStats)
}

var (
	_ storage.StatsStore     = (*memStore)(nil)
	_ storage.AdvisoryLocker = (*memStore)(nil)
)

// staticGraph is a graph.Source returning a fixed snapshot.
type staticGraph struct {
	snapshot graph.Snapshot
	err      error
	calls    int
}

func (g *staticGraph) FetchGraph(context.Context) (graph.Snapshot, error) {
	g.calls++
	return g.snapshot, g.err
}
