package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lnstats/internal/logging"
)

// Graph source identifiers.
const (
	GraphSourceLND  = "lnd"
	GraphSourceREST = "rest"
	GraphSourceNone = "none"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// SchedulerConfig governs the aggregation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// StatsConfig tunes the aggregation tasks.
type StatsConfig struct {
	// Epoch is the first day (YYYY-MM-DD, UTC) of the backfilled series.
	Epoch      string `mapstructure:"epoch"`
	MinNodes   int    `mapstructure:"min_nodes"`
	MarkerName string `mapstructure:"marker_name"`
}

// EpochTime parses Epoch as a UTC date.
func (s StatsConfig) EpochTime() (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s.Epoch, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stats.epoch: %w", err)
	}
	return t, nil
}

// GraphConfig selects and configures the network graph source. Sync mirrors
// the graph into the nodes and channels tables each cycle.
type GraphConfig struct {
	Source         string        `mapstructure:"source"`
	Sync           bool          `mapstructure:"sync"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LND            LNDConfig     `mapstructure:"lnd"`
	REST           RESTConfig    `mapstructure:"rest"`
}

// LNDConfig covers the gRPC connection to an lnd node.
type LNDConfig struct {
	Host               string `mapstructure:"host"`
	TLSCertPath        string `mapstructure:"tls_cert_path"`
	MacaroonPath       string `mapstructure:"macaroon_path"`
	IncludeUnannounced bool   `mapstructure:"include_unannounced"`
}

// RESTConfig covers the lnd REST graph endpoint.
type RESTConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	MacaroonPath  string        `mapstructure:"macaroon_path"`
	UserAgent     string        `mapstructure:"user_agent"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LNSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lnstats")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c6e7374))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("stats.epoch", "2018-01-13")
	v.SetDefault("stats.min_nodes", 10)
	v.SetDefault("stats.marker_name", "last_node_stats")

	v.SetDefault("graph.source", GraphSourceLND)
	v.SetDefault("graph.sync", true)
	v.SetDefault("graph.request_timeout", "60s")
	v.SetDefault("graph.lnd.host", "localhost:10009")
	v.SetDefault("graph.lnd.include_unannounced", false)
	v.SetDefault("graph.rest.base_url", "https://localhost:8080")
	v.SetDefault("graph.rest.user_agent", "lnstats/1.0")
	v.SetDefault("graph.rest.retry_attempts", 3)
	v.SetDefault("graph.rest.retry_delay", "2s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Stats.MinNodes < 0 {
		return fmt.Errorf("stats.min_nodes cannot be negative")
	}
	if strings.TrimSpace(c.Stats.MarkerName) == "" {
		return fmt.Errorf("stats.marker_name must be set")
	}
	if _, err := c.Stats.EpochTime(); err != nil {
		return err
	}
	switch c.Graph.Source {
	case GraphSourceLND:
		if c.Graph.LND.Host == "" {
			return fmt.Errorf("graph.lnd.host must be set when graph.source is lnd")
		}
	case GraphSourceREST:
		if c.Graph.REST.BaseURL == "" {
			return fmt.Errorf("graph.rest.base_url must be set when graph.source is rest")
		}
	case GraphSourceNone:
	default:
		return fmt.Errorf("graph.source %q is not supported", c.Graph.Source)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid TCP port")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
