package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"lnstats/internal/service"
	"lnstats/internal/stats"
	"lnstats/internal/storage"
)

// Inspect computes a node's current fee statistics from its channels without persisting them.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	channels, err := store.ListChannelsForNode(ctx, opts.Node)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels recorded for node %s", opts.Node)
	}

	sample := service.NodeSample(service.AggregateChannels(opts.Node, channels), channels, time.Now().UTC())
	return writeInspection(os.Stdout, sample, len(channels))
}

func writeInspection(out io.Writer, s storage.NodeStatsSample, total int) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Node\t%s\n", s.PublicKey)
	fmt.Fprintf(writer, "Open channels\t%d of %d\n", s.Channels, total)
	fmt.Fprintf(writer, "Open capacity (BTC)\t%s\n", formatBTC(s.Capacity))
	fmt.Fprintf(writer, "Fee rate (ppm)\tavg %s\tmed %d\n", formatDecimal(s.AvgFeeRate, 2), s.MedFeeRate)
	fmt.Fprintf(writer, "Base fee (msat)\tavg %s\tmed %d\n", formatDecimal(s.AvgBaseFee, 2), s.MedBaseFee)
	fmt.Fprintf(writer, "Median capacity (sat)\t%d\n", s.MedCapacity)
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "Fee bucket (ppm)\tCapacity (BTC)")
	for i, v := range s.FeeRateDistribution {
		fmt.Fprintf(writer, "%s\t%s\n", stats.BucketLabel(i), formatBTC(v))
	}
	return writer.Flush()
}
