package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"lnstats/internal/logging"
	"lnstats/internal/storage"
)

// BackfillOptions tune the historical backfill.
type BackfillOptions struct {
	Epoch time.Time
}

// Backfiller rebuilds the daily network series the first time the service runs.
type Backfiller struct {
	store  storage.NetworkStatsStore
	opts   BackfillOptions
	logger zerolog.Logger
}

// NewBackfiller constructs a Backfiller.
func NewBackfiller(store storage.NetworkStatsStore, opts BackfillOptions, logger zerolog.Logger) *Backfiller {
	opts.Epoch = storage.DayStart(opts.Epoch)
	return &Backfiller{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "backfill").Logger(),
	}
}

// Name implements Task.
func (b *Backfiller) Name() string { return "historical_backfill" }

// Run implements Task. It is a no-op once any network sample exists. The
// series is written as a whole, so a failed run leaves nothing behind and the
// next cycle starts over.
func (b *Backfiller) Run(ctx context.Context, now time.Time) (Status, error) {
	logger := logging.ForCycle(ctx, b.logger).With().Str("task", b.Name()).Logger()

	existing, err := b.store.CountNetworkStats(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("count network stats: %w", err)
	}
	if existing > 0 {
		logger.Debug().Int64("rows", existing).Msg("network stats present, backfill not needed")
		return StatusSkipped, nil
	}

	days := backfillDays(b.opts.Epoch, now)
	if len(days) == 0 {
		logger.Warn().Time("epoch", b.opts.Epoch).Time("now", now).Msg("epoch is in the future, nothing to backfill")
		return StatusSkipped, nil
	}

	history, err := b.store.ListChannelHistory(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("list channel history: %w", err)
	}
	series := channelSeries(days, history)

	firstSeen, err := b.store.ListNodeFirstSeen(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("list node first seen: %w", err)
	}
	nodes := nodeCounts(days, firstSeen)

	updates := make([]storage.NodeCountUpdate, 0, len(days))
	for i, day := range days {
		if nodes[i] == 0 {
			continue
		}
		updates = append(updates, storage.NodeCountUpdate{Added: day, NodeCount: nodes[i]})
	}

	err = b.store.BackfillNetworkStats(ctx, series, updates)
	if errors.Is(err, storage.ErrSeriesExists) {
		logger.Info().Msg("network stats written concurrently, backfill not needed")
		return StatusSkipped, nil
	}
	if err != nil {
		return StatusFailed, fmt.Errorf("backfill %d days from %s: %w", len(days), storage.DateKey(days[0]), err)
	}

	logger.Info().
		Int("days", len(series)).
		Int64("channels", series[len(series)-1].ChannelCount).
		Int64("nodes", nodes[len(nodes)-1]).
		Msg("network history backfilled")
	return StatusCompleted, nil
}

// Plan computes the series Run would write, without touching the store.
func (b *Backfiller) Plan(ctx context.Context, now time.Time) ([]storage.NetworkStatsSample, error) {
	days := backfillDays(b.opts.Epoch, now)
	if len(days) == 0 {
		return nil, nil
	}
	history, err := b.store.ListChannelHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channel history: %w", err)
	}
	firstSeen, err := b.store.ListNodeFirstSeen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list node first seen: %w", err)
	}

	series := channelSeries(days, history)
	for i, n := range nodeCounts(days, firstSeen) {
		series[i].NodeCount = n
	}
	return series, nil
}

// backfillDays lists every UTC midnight from epoch through now, inclusive.
func backfillDays(epoch, now time.Time) []time.Time {
	start := storage.DayStart(epoch)
	end := storage.DayStart(now)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// channelSeries counts the channels open on each day. A channel is open on d
// when it was created on or before d and not closed before d.
func channelSeries(days []time.Time, history []storage.ChannelHistory) []storage.NetworkStatsSample {
	sorted := make([]storage.ChannelHistory, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.Before(sorted[j].Created)
	})

	series := make([]storage.NetworkStatsSample, 0, len(days))
	for _, day := range days {
		sample := storage.NetworkStatsSample{Added: day}
		for _, ch := range sorted {
			if storage.DayStart(ch.Created).After(day) {
				break
			}
			if ch.ClosingDate != nil && storage.DayStart(*ch.ClosingDate).Before(day) {
				continue
			}
			sample.ChannelCount++
			sample.TotalCapacity += ch.Capacity
		}
		series = append(series, sample)
	}
	return series
}

// nodeCounts counts the nodes first seen on or before each day.
func nodeCounts(days []time.Time, firstSeen []time.Time) []int64 {
	sorted := make([]time.Time, len(firstSeen))
	copy(sorted, firstSeen)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	counts := make([]int64, len(days))
	for i, day := range days {
		var n int64
		for _, seen := range sorted {
			if storage.DayStart(seen).After(day) {
				break
			}
			n++
		}
		counts[i] = n
	}
	return counts
}
