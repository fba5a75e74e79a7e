package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lnstats/internal/config"
	"lnstats/internal/graph"
	"lnstats/internal/logging"
	"lnstats/internal/scheduler"
	"lnstats/internal/storage"
)

// Service runs the aggregation tasks in order on every scheduled cycle.
type Service struct {
	scheduler *scheduler.Scheduler
	tasks     []Task
	logger    zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the aggregation service: graph sync when enabled, then
// backfill, snapshot and node stats.
func New(cfg *config.Config, sched *scheduler.Scheduler, store storage.StatsStore, source graph.Source, logger zerolog.Logger) (*Service, error) {
	epoch, err := cfg.Stats.EpochTime()
	if err != nil {
		return nil, err
	}

	var tasks []Task
	if cfg.Graph.Sync && cfg.Graph.Source != config.GraphSourceNone {
		tasks = append(tasks, NewGraphSyncJob(store, source, logger))
	}
	tasks = append(tasks,
		NewBackfiller(store, BackfillOptions{Epoch: epoch}, logger),
		NewSnapshotJob(store, source, cfg.Stats.MarkerName, logger),
		NewNodeStatsJob(store, cfg.Stats.MarkerName, cfg.Stats.MinNodes, logger),
	)
	return NewWithTasks(sched, store, cfg.Scheduler.AdvisoryLockKey, tasks, logger), nil
}

// NewWithTasks builds a Service around an explicit task list. store may be nil;
// when it implements storage.AdvisoryLocker and lockKey is non-zero, cycles
// are serialised across processes.
func NewWithTasks(sched *scheduler.Scheduler, store any, lockKey int64, tasks []Task, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		tasks:     tasks,
		logger:    logger.With().Str("component", "service").Logger(),
		locker:    locker,
		lockKey:   lockKey,
	}
}

// Tasks returns the configured tasks in execution order.
func (s *Service) Tasks() []Task {
	return s.tasks
}

// Run begins the periodic aggregation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.tick)
}

func (s *Service) tick(ctx context.Context, at time.Time) error {
	_, err := s.RunCycle(ctx, at)
	return err
}

// RunCycle executes every task once. A failing task is logged and the
// remaining tasks still run; only lock acquisition errors are returned.
func (s *Service) RunCycle(ctx context.Context, now time.Time) ([]TaskResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Debug().Time("at", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	ctx = logging.WithCycleID(ctx, uuid.NewString())
	logger := logging.ForCycle(ctx, s.logger)

	results := make([]TaskResult, 0, len(s.tasks))
	for _, task := range s.tasks {
		result := runTask(ctx, task, now)
		results = append(results, result)

		event := logger.Info()
		if result.Failed() {
			event = logger.Error().Err(result.Err)
		}
		event.Str("task", result.Task).
			Str("status", string(result.Status)).
			Dur("duration", result.Duration).
			Msg("task finished")
	}
	return results, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
