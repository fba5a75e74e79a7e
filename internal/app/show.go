package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"lnstats/internal/storage"
)

// Show prints recent network samples, one node's history, or a node ranking.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch {
	case opts.Node != "":
		return a.showNode(ctx, store, opts)
	case opts.Top != "":
		ranked, err := store.TopNodes(ctx, opts.Top, opts.Limit)
		if err != nil {
			return err
		}
		return writeRankedTable(os.Stdout, ranked)
	default:
		samples, err := store.ListRecentNetworkStats(ctx, opts.Limit)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			fmt.Fprintln(os.Stdout, "no network samples found")
			return nil
		}
		return writeNetworkTable(os.Stdout, samples)
	}
}

func (a *App) showNode(ctx context.Context, store *storage.Store, opts ShowOptions) error {
	node, err := store.GetNode(ctx, opts.Node)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("node %s not found", opts.Node)
	}
	if err != nil {
		return err
	}

	samples, err := store.ListNodeStats(ctx, node.PublicKey, opts.Limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s (%s) first seen %s\n", node.PublicKey, sanitizeInline(node.Alias), node.FirstSeen.UTC().Format(time.RFC3339))
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no stats samples yet")
		return nil
	}
	return writeNodeStatsTable(os.Stdout, samples)
}

func writeNetworkTable(out io.Writer, samples []storage.NetworkStatsSample) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChannels\tNodes\tCapacity (BTC)")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\n",
			sample.Added.UTC().Format(time.RFC3339),
			sample.ChannelCount,
			sample.NodeCount,
			formatBTC(sample.TotalCapacity),
		)
	}
	return writer.Flush()
}

func writeNodeStatsTable(out io.Writer, samples []storage.NodeStatsSample) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChannels\tCapacity (BTC)\tAvg fee\tMed fee\tAvg base\tMed base\tMed capacity")
	for _, s := range samples {
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%d\t%s\t%d\t%d\n",
			s.Added.UTC().Format(time.RFC3339),
			s.Channels,
			formatBTC(s.Capacity),
			formatDecimal(s.AvgFeeRate, 2),
			s.MedFeeRate,
			formatDecimal(s.AvgBaseFee, 2),
			s.MedBaseFee,
			s.MedCapacity,
		)
	}
	return writer.Flush()
}

func writeRankedTable(out io.Writer, ranked []storage.RankedNode) error {
	if len(ranked) == 0 {
		_, err := fmt.Fprintln(out, "no node stats recorded yet")
		return err
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tPublic key\tAlias\tChannels\tCapacity (BTC)\tSampled (UTC)")
	for i, rn := range ranked {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%d\t%s\t%s\n",
			i+1,
			rn.Node.PublicKey,
			sanitizeInline(rn.Node.Alias),
			rn.Channels,
			formatBTC(rn.Capacity),
			rn.Added.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func formatBTC(sats int64) string {
	return decimal.NewFromInt(sats).Shift(-8).StringFixed(8)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
