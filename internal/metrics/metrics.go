package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Outcome string

const (
	Success Outcome = "success"
	Error   Outcome = "error"

	requestTimeout     = 5 * time.Second
	requestIdleTimeout = 10 * time.Second
)

func (o Outcome) String() string {
	return string(o)
}

var (
	registerOnce sync.Once

	taskDuration     *prometheus.HistogramVec
	taskResults      *prometheus.CounterVec
	dbLatency        *prometheus.HistogramVec
	graphLatency     *prometheus.HistogramVec
	nodeStatsWritten prometheus.Counter
	networkChannels  prometheus.Gauge
	networkNodes     prometheus.Gauge
	networkCapacity  prometheus.Gauge
)

func init() {
	register()
}

func register() {
	registerOnce.Do(func() {
		defaultBucketsSeconds := []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 120, 600}

		taskDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lnstats_task_duration_seconds",
				Help:    "Duration of aggregation tasks in seconds.",
				Buckets: defaultBucketsSeconds,
			},
			[]string{"task", "status"},
		)

		taskResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lnstats_task_results_total",
				Help: "Aggregation task outcomes by task and status.",
			},
			[]string{"task", "status"},
		)

		dbLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "lnstats_db_latency_seconds",
				Help: "DB latency in seconds split by method and execution status",
			},
			[]string{"method", "status"},
		)

		graphLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lnstats_graph_fetch_latency_seconds",
				Help:    "Latency of network graph snapshot fetches.",
				Buckets: defaultBucketsSeconds,
			},
			[]string{"source", "status"},
		)

		nodeStatsWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lnstats_node_stats_written_total",
				Help: "Number of node stats samples written.",
			},
		)

		networkChannels = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lnstats_network_channel_count",
			Help: "Channel count of the last network snapshot.",
		})
		networkNodes = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lnstats_network_node_count",
			Help: "Node count of the last network snapshot.",
		})
		networkCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lnstats_network_total_capacity_sat",
			Help: "Total capacity of the last network snapshot.",
		})

		prometheus.MustRegister(
			taskDuration,
			taskResults,
			dbLatency,
			graphLatency,
			nodeStatsWritten,
			networkChannels,
			networkNodes,
			networkCapacity,
		)
	})
}

// Serve exposes /metrics on port until ctx is cancelled.
func Serve(ctx context.Context, port int, logger zerolog.Logger) error {
	router := chi.NewRouter()
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  requestIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("starting metrics server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func outcome(failure bool) Outcome {
	if failure {
		return Error
	}
	return Success
}

// RecordTask records one task execution; status is completed, skipped or failed.
func RecordTask(task, status string, d time.Duration) {
	taskDuration.WithLabelValues(task, status).Observe(d.Seconds())
	taskResults.WithLabelValues(task, status).Inc()
}

func RecordDbLatency(d time.Duration, method string, failure bool) {
	dbLatency.WithLabelValues(method, outcome(failure).String()).Observe(d.Seconds())
}

func RecordGraphLatency(d time.Duration, source string, failure bool) {
	graphLatency.WithLabelValues(source, outcome(failure).String()).Observe(d.Seconds())
}

func IncNodeStatsWritten() {
	nodeStatsWritten.Inc()
}

func RecordNetworkSnapshot(channels, nodes, capacity int64) {
	networkChannels.Set(float64(channels))
	networkNodes.Set(float64(nodes))
	networkCapacity.Set(float64(capacity))
}
