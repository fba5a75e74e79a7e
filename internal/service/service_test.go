package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnstats/internal/config"
	"lnstats/internal/logging"
	"lnstats/internal/scheduler"
	"lnstats/internal/storage"
)

type funcTask struct {
	name string
	run  func(ctx context.Context, now time.Time) (Status, error)
}

func (f funcTask) Name() string { return f.name }

func (f funcTask) Run(ctx context.Context, now time.Time) (Status, error) {
	return f.run(ctx, now)
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Hour, AdvisoryLockKey: 99},
		Stats:     config.StatsConfig{Epoch: "2024-06-01", MinNodes: 10, MarkerName: testMarker},
	}
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	var order []string
	record := func(name string, status Status, err error) Task {
		return funcTask{name: name, run: func(context.Context, time.Time) (Status, error) {
			order = append(order, name)
			return status, err
		}}
	}
	panicking := funcTask{name: "panics", run: func(context.Context, time.Time) (Status, error) {
		order = append(order, "panics")
		panic("bad day")
	}}

	svc := NewWithTasks(nil, nil, 0, []Task{
		record("first", StatusFailed, errors.New("store unavailable")),
		panicking,
		record("last", StatusSkipped, nil),
	}, zerolog.Nop())

	results, err := svc.RunCycle(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "panics", "last"}, order)

	require.Len(t, results, 3)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.EqualError(t, results[0].Err, "store unavailable")
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.ErrorContains(t, results[1].Err, "bad day")
	assert.Equal(t, StatusSkipped, results[2].Status)
	assert.NoError(t, results[2].Err)
}

func TestRunCycleTagsTaskLogsWithCycleID(t *testing.T) {
	var sawID string
	task := funcTask{name: "tagged", run: func(ctx context.Context, _ time.Time) (Status, error) {
		sawID, _ = logging.CycleID(ctx)
		return StatusCompleted, nil
	}}

	store := newMemStore()
	store.network = []storage.NetworkStatsSample{{Added: testEpoch}}

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	backfill := NewBackfiller(store, BackfillOptions{Epoch: testEpoch}, logger)
	svc := NewWithTasks(nil, nil, 0, []Task{task, backfill}, logger)

	_, err := svc.RunCycle(context.Background(), testNow)
	require.NoError(t, err)
	require.NotEmpty(t, sawID)

	var jobLines, serviceLines int
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))
		assert.Equal(t, sawID, line["cycle_id"])
		switch line["component"] {
		case "backfill":
			jobLines++
		case "service":
			serviceLines++
		}
	}
	assert.Equal(t, 1, jobLines, "the job keeps its own component")
	assert.Equal(t, 2, serviceLines)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	store := newMemStore()
	store.lockHeld = true

	ran := false
	task := funcTask{name: "never", run: func(context.Context, time.Time) (Status, error) {
		ran = true
		return StatusCompleted, nil
	}}
	svc := NewWithTasks(nil, store, 42, []Task{task}, zerolog.Nop())

	results, err := svc.RunCycle(context.Background(), testNow)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, ran)
	assert.Equal(t, 1, store.lockCalls)
}

func TestFirstCycleBackfillsThenWritesNodeStats(t *testing.T) {
	store := newMemStore()
	seedNodes(store, 10)
	store.channels = []storage.Channel{
		{ID: "1", Node1PublicKey: "node-00", Node2PublicKey: "node-01", Capacity: 500, Created: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), Status: storage.ChannelActive},
	}
	src := &staticGraph{snapshot: testSnapshot()}

	svc, err := New(testConfig(), nil, store, src, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, svc.Tasks(), 3)

	results, err := svc.RunCycle(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, StatusCompleted, results[0].Status, "backfill")
	assert.Equal(t, StatusSkipped, results[1].Status, "backfill already covers today")
	assert.Equal(t, StatusCompleted, results[2].Status, "node stats")

	// 2024-06-01 through 2024-06-03
	require.Len(t, store.network, 3)
	assert.Equal(t, int64(500), store.network[2].TotalCapacity)
	assert.Equal(t, int64(10), store.network[2].NodeCount)
	assert.Equal(t, 10, store.nodeStatsCount())
	assert.Zero(t, src.calls)

	// a later cycle the same day is a no-op for every task
	results, err = svc.RunCycle(context.Background(), testNow.Add(time.Hour))
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, StatusSkipped, r.Status, r.Task)
	}
	assert.Equal(t, 10, store.nodeStatsCount())

	// next day the snapshot comes from the live graph
	results, err = svc.RunCycle(context.Background(), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, results[1].Status)
	require.Len(t, store.network, 4)
	assert.Equal(t, int64(3_500), store.network[3].TotalCapacity)
	assert.Equal(t, 20, store.nodeStatsCount())
	assert.Equal(t, 1, src.calls)
}

func TestServiceRunUsesScheduler(t *testing.T) {
	store := newMemStore()
	sched := scheduler.New(scheduler.Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	done := make(chan struct{})
	task := funcTask{name: "once", run: func(context.Context, time.Time) (Status, error) {
		close(done)
		return StatusCompleted, nil
	}}
	svc := NewWithTasks(sched, store, 0, []Task{task}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service should run a cycle on start")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	assert.Zero(t, store.lockCalls, "lock key 0 disables locking")
}

func TestServiceRunWithoutScheduler(t *testing.T) {
	svc := NewWithTasks(nil, nil, 0, nil, zerolog.Nop())
	require.Error(t, svc.Run(context.Background()))
}
