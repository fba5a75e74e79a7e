package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"lnstats/internal/storage"
)

// Export renders the network series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from, err := a.Config.Stats.EpochTime()
	if err != nil {
		return err
	}
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListNetworkStatsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no network samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting network samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.NetworkStatsSample, max int) []storage.NetworkStatsSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.NetworkStatsSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.NetworkStatsSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"added", "channel_count", "node_count", "total_capacity_sat", "total_capacity_btc"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.Added.UTC().Format(time.RFC3339),
			strconv.FormatInt(sample.ChannelCount, 10),
			strconv.FormatInt(sample.NodeCount, 10),
			strconv.FormatInt(sample.TotalCapacity, 10),
			formatBTC(sample.TotalCapacity),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.NetworkStatsSample) error {
	if len(samples) < 2 {
		return errors.New("at least two samples are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	capacity := make([]float64, len(samples))
	channels := make([]float64, len(samples))
	nodes := make([]float64, len(samples))

	for i, sample := range samples {
		x[i] = sample.Added
		capacity[i] = float64(sample.TotalCapacity) / 1e8
		channels[i] = float64(sample.ChannelCount)
		nodes[i] = float64(sample.NodeCount)
	}

	btcFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Capacity (BTC)",
			ValueFormatter: btcFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Count",
			ValueFormatter: btcFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Capacity",
				XValues: x,
				YValues: capacity,
			},
			chart.TimeSeries{
				Name:    "Channels",
				XValues: x,
				YValues: channels,
				YAxis:   chart.YAxisSecondary,
			},
			chart.TimeSeries{
				Name:    "Nodes",
				XValues: x,
				YValues: nodes,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
