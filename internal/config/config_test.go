package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: lnstats\n"))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, 10, cfg.Stats.MinNodes)
	assert.Equal(t, "last_node_stats", cfg.Stats.MarkerName)
	assert.Equal(t, GraphSourceLND, cfg.Graph.Source)
	assert.True(t, cfg.Graph.Sync)
	assert.Equal(t, uint(3), cfg.Graph.REST.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Graph.REST.RetryDelay)
	assert.Equal(t, 60*time.Second, cfg.Graph.RequestTimeout)

	epoch, err := cfg.Stats.EpochTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 1, 13, 0, 0, 0, 0, time.UTC), epoch)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scheduler:
  interval: 15m
  startup_delay: 5s
stats:
  epoch: "2020-02-01"
  min_nodes: 3
graph:
  source: rest
  rest:
    base_url: https://lnd.internal:8080
    retry_attempts: 5
`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StartupDelay)
	assert.Equal(t, 3, cfg.Stats.MinNodes)
	assert.Equal(t, GraphSourceREST, cfg.Graph.Source)
	assert.Equal(t, "https://lnd.internal:8080", cfg.Graph.REST.BaseURL)
	assert.Equal(t, uint(5), cfg.Graph.REST.RetryAttempts)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LNSTATS_STATS_MIN_NODES", "25")
	t.Setenv("LNSTATS_GRAPH_SOURCE", "none")

	cfg, err := Load(writeConfig(t, "stats:\n  min_nodes: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Stats.MinNodes)
	assert.Equal(t, GraphSourceNone, cfg.Graph.Source)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Scheduler: SchedulerConfig{Interval: time.Hour},
			Stats:     StatsConfig{Epoch: "2018-01-13", MinNodes: 10, MarkerName: "last_node_stats"},
			Graph:     GraphConfig{Source: GraphSourceNone},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"zero interval":     func(c *Config) { c.Scheduler.Interval = 0 },
		"bad epoch":         func(c *Config) { c.Stats.Epoch = "13/01/2018" },
		"empty marker":      func(c *Config) { c.Stats.MarkerName = " " },
		"negative nodes":    func(c *Config) { c.Stats.MinNodes = -1 },
		"unknown source":    func(c *Config) { c.Graph.Source = "btcd" },
		"lnd without host":  func(c *Config) { c.Graph.Source = GraphSourceLND },
		"rest without url":  func(c *Config) { c.Graph.Source = GraphSourceREST },
		"bad metrics port":  func(c *Config) { c.Metrics = MetricsConfig{Enabled: true, Port: 70000} },
		"zero export limit": func(c *Config) { c.Export.MaxDataPoints = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
