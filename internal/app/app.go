package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lnstats/internal/config"
	"lnstats/internal/graph"
	"lnstats/internal/metrics"
	"lnstats/internal/scheduler"
	"lnstats/internal/service"
	"lnstats/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newGraphSource() (graph.Source, func(), error) {
	cfg := a.Config.Graph
	switch cfg.Source {
	case config.GraphSourceLND:
		src := graph.NewLND(graph.LNDOptions{
			Host:               cfg.LND.Host,
			TLSCertPath:        cfg.LND.TLSCertPath,
			MacaroonPath:       cfg.LND.MacaroonPath,
			IncludeUnannounced: cfg.LND.IncludeUnannounced,
			Timeout:            cfg.RequestTimeout,
		}, a.Logger)
		return src, func() { _ = src.Close() }, nil
	case config.GraphSourceREST:
		src, err := graph.NewREST(graph.RESTOptions{
			BaseURL:            cfg.REST.BaseURL,
			MacaroonPath:       cfg.REST.MacaroonPath,
			UserAgent:          cfg.REST.UserAgent,
			IncludeUnannounced: cfg.LND.IncludeUnannounced,
			Timeout:            cfg.RequestTimeout,
			RetryAttempts:      cfg.REST.RetryAttempts,
			RetryDelay:         cfg.REST.RetryDelay,
			SkipTLSVerify:      cfg.REST.SkipTLSVerify,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	default:
		a.Logger.Warn().Msg("graph.source is none; daily snapshots will fail")
		return graph.Disabled{}, nil, nil
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

// Run executes the long-running aggregation service, or a single cycle when opts.Once is set.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	source, closeSource, err := a.newGraphSource()
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	if a.Config.Metrics.Enabled && !opts.Once {
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.Port, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		RunOnStart:      a.Config.Scheduler.RunOnStart,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := service.New(a.Config, sched, storage.NewStoreWithMetrics(store), source, a.Logger)
	if err != nil {
		return err
	}

	if opts.Once {
		return a.runOnce(ctx, svc)
	}

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Str("graph_source", a.Config.Graph.Source).
		Msg("starting aggregation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}

func (a *App) runOnce(ctx context.Context, svc *service.Service) error {
	results, err := svc.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if results == nil {
		a.Logger.Warn().Msg("advisory lock held elsewhere; cycle not run")
		return nil
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed, check logs", failed, len(results))
	}
	return nil
}

// RunOptions configure the run command.
type RunOptions struct {
	Once bool
}

// ExportOptions hold parameters for exporting the network series.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Node  string
	Top   storage.TopOrder
}

// BackfillOptions configure the backfill command.
type BackfillOptions struct {
	DryRun bool
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	Node string
}
