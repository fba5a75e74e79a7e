package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"lnstats/internal/service"
	"lnstats/internal/storage"
)

// Backfill runs the historical backfill on its own. With DryRun the series is
// printed instead of written.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	epoch, err := a.Config.Stats.EpochTime()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	backfiller := service.NewBackfiller(storage.NewStoreWithMetrics(store), service.BackfillOptions{Epoch: epoch}, a.Logger)

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
		series, err := backfiller.Plan(ctx, now)
		if err != nil {
			return err
		}
		return writeSeriesTable(os.Stdout, series)
	}

	status, err := backfiller.Run(ctx, now)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("status", string(status)).Msg("backfill finished")
	return nil
}

func writeSeriesTable(out io.Writer, series []storage.NetworkStatsSample) error {
	if len(series) == 0 {
		_, err := fmt.Fprintln(out, "no days to backfill")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day (UTC)\tChannels\tNodes\tCapacity (BTC)")
	for _, sample := range series {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\n",
			storage.DateKey(sample.Added),
			sample.ChannelCount,
			sample.NodeCount,
			formatBTC(sample.TotalCapacity),
		)
	}
	return writer.Flush()
}
