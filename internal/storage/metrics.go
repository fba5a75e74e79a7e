package storage

import (
	"context"
	"time"

	"lnstats/internal/metrics"
)

// StoreWithMetrics records latency for every StatsStore call.
type StoreWithMetrics struct {
	store StatsStore
}

// NewStoreWithMetrics wraps store with latency instrumentation.
func NewStoreWithMetrics(store StatsStore) *StoreWithMetrics {
	return &StoreWithMetrics{store: store}
}

// TryAdvisoryLock forwards to the wrapped store when it supports locking.
func (d *StoreWithMetrics) TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error) {
	locker, ok := d.store.(AdvisoryLocker)
	if !ok {
		return nil, true, nil
	}
	//nolint:errcheck
	d.run("TryAdvisoryLock", func() error {
		unlock, acquired, err = locker.TryAdvisoryLock(ctx, key)
		return err
	})
	return
}

func (d *StoreWithMetrics) CountNetworkStats(ctx context.Context) (result int64, err error) {
	//nolint:errcheck
	d.run("CountNetworkStats", func() error {
		result, err = d.store.CountNetworkStats(ctx)
		return err
	})
	return
}

func (d *StoreWithMetrics) ListChannelHistory(ctx context.Context) (result []ChannelHistory, err error) {
	//nolint:errcheck
	d.run("ListChannelHistory", func() error {
		result, err = d.store.ListChannelHistory(ctx)
		return err
	})
	return
}

func (d *StoreWithMetrics) ListNodeFirstSeen(ctx context.Context) (result []time.Time, err error) {
	//nolint:errcheck
	d.run("ListNodeFirstSeen", func() error {
		result, err = d.store.ListNodeFirstSeen(ctx)
		return err
	})
	return
}

func (d *StoreWithMetrics) InsertNetworkStats(ctx context.Context, sample NetworkStatsSample) error {
	return d.run("InsertNetworkStats", func() error {
		return d.store.InsertNetworkStats(ctx, sample)
	})
}

func (d *StoreWithMetrics) BackfillNetworkStats(ctx context.Context, series []NetworkStatsSample, nodeCounts []NodeCountUpdate) error {
	return d.run("BackfillNetworkStats", func() error {
		return d.store.BackfillNetworkStats(ctx, series, nodeCounts)
	})
}

func (d *StoreWithMetrics) SyncGraph(ctx context.Context, nodes []Node, channels []Channel, at time.Time) (closed int64, err error) {
	//nolint:errcheck
	d.run("SyncGraph", func() error {
		closed, err = d.store.SyncGraph(ctx, nodes, channels, at)
		return err
	})
	return
}

func (d *StoreWithMetrics) HasNetworkStatsOn(ctx context.Context, day time.Time) (result bool, err error) {
	//nolint:errcheck
	d.run("HasNetworkStatsOn", func() error {
		result, err = d.store.HasNetworkStatsOn(ctx, day)
		return err
	})
	return
}

func (d *StoreWithMetrics) ListNodeAggregates(ctx context.Context) (result []NodeAggregate, err error) {
	//nolint:errcheck
	d.run("ListNodeAggregates", func() error {
		result, err = d.store.ListNodeAggregates(ctx)
		return err
	})
	return
}

func (d *StoreWithMetrics) ListChannelsForNode(ctx context.Context, publicKey string) (result []Channel, err error) {
	//nolint:errcheck
	d.run("ListChannelsForNode", func() error {
		result, err = d.store.ListChannelsForNode(ctx, publicKey)
		return err
	})
	return
}

func (d *StoreWithMetrics) InsertNodeStats(ctx context.Context, sample NodeStatsSample) error {
	return d.run("InsertNodeStats", func() error {
		return d.store.InsertNodeStats(ctx, sample)
	})
}

func (d *StoreWithMetrics) GetState(ctx context.Context, name string) (result string, err error) {
	//nolint:errcheck
	d.run("GetState", func() error {
		result, err = d.store.GetState(ctx, name)
		return err
	})
	return
}

func (d *StoreWithMetrics) SetState(ctx context.Context, name, value string) error {
	return d.run("SetState", func() error {
		return d.store.SetState(ctx, name, value)
	})
}

func (d *StoreWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()

	duration := time.Since(startTime)
	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}

var (
	_ StatsStore     = (*Store)(nil)
	_ StatsStore     = (*StoreWithMetrics)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ AdvisoryLocker = (*StoreWithMetrics)(nil)
)
