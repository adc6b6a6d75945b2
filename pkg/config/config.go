// Package config loads and validates batchfetch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/batch"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/client"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/proxy"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
)

// EnvPrefix is prepended to environment overrides, e.g.
// BATCHFETCH_ENGINE_RETRY_BUDGET.
const EnvPrefix = "BATCHFETCH"

// Store backends.
const (
	StoreNone  = "none"
	StoreFS    = "fs"
	StoreRedis = "redis"
)

// Config captures all CLI configuration loaded via Viper.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Proxies ProxiesConfig `mapstructure:"proxies"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Job     JobConfig     `mapstructure:"job"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ProxiesConfig points at the proxy list and tunes the self-test.
type ProxiesConfig struct {
	File          string        `mapstructure:"file"`
	EchoURL       string        `mapstructure:"echo_url"`
	VerifySample  int           `mapstructure:"verify_sample"`
	VerifyGap     time.Duration `mapstructure:"verify_gap"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

// EngineConfig tunes admission, retries and the transport.
type EngineConfig struct {
	Method                string        `mapstructure:"method"`
	RetryBudget           int           `mapstructure:"retry_budget"`
	BucketCapacity        int           `mapstructure:"bucket_capacity"`
	RefillRate            float64       `mapstructure:"refill_rate"`
	Backoff               time.Duration `mapstructure:"backoff"`
	MaxWait               time.Duration `mapstructure:"max_wait"`
	MaxConcurrency        int           `mapstructure:"max_concurrency"`
	PassBackoffInitial    time.Duration `mapstructure:"pass_backoff_initial"`
	PassBackoffMax        time.Duration `mapstructure:"pass_backoff_max"`
	PassBackoffMultiplier float64       `mapstructure:"pass_backoff_multiplier"`
	Deadline              time.Duration `mapstructure:"deadline"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	UserAgent             string        `mapstructure:"user_agent"`
}

// JobConfig describes what one run fetches. Rows come from RowsFile or,
// when it is empty, from the integer range [RangeFrom, RangeTo) stored under
// RangeField.
type JobConfig struct {
	Vendor     string           `mapstructure:"vendor"`
	RowsFile   string           `mapstructure:"rows_file"`
	RangeField string           `mapstructure:"range_field"`
	RangeFrom  int              `mapstructure:"range_from"`
	RangeTo    int              `mapstructure:"range_to"`
	Request    request.Template `mapstructure:"request"`
}

// StoreConfig selects where raw documents go.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend"`
	Dir       string        `mapstructure:"dir"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint served during a run.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	eng := batch.DefaultConfig()
	cl := client.DefaultConfig()

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
	v.SetDefault("proxies.file", "proxies.txt")
	v.SetDefault("proxies.echo_url", proxy.DefaultEchoURL)
	v.SetDefault("proxies.verify_sample", 10)
	v.SetDefault("proxies.verify_gap", time.Second)
	v.SetDefault("proxies.verify_timeout", 10*time.Second)
	v.SetDefault("engine.method", "")
	v.SetDefault("engine.retry_budget", eng.RetryBudget)
	v.SetDefault("engine.bucket_capacity", eng.BucketCapacity)
	v.SetDefault("engine.refill_rate", eng.RefillRate)
	v.SetDefault("engine.backoff", eng.Backoff)
	v.SetDefault("engine.max_wait", time.Duration(0))
	v.SetDefault("engine.max_concurrency", eng.MaxConcurrency)
	v.SetDefault("engine.pass_backoff_initial", time.Duration(0))
	v.SetDefault("engine.pass_backoff_max", time.Duration(0))
	v.SetDefault("engine.pass_backoff_multiplier", 2.0)
	v.SetDefault("engine.deadline", time.Duration(0))
	v.SetDefault("engine.request_timeout", cl.Timeout)
	v.SetDefault("engine.user_agent", cl.UserAgent)
	v.SetDefault("job.range_field", "number")
	v.SetDefault("job.request.method", "GET")
	v.SetDefault("store.backend", StoreFS)
	v.SetDefault("store.dir", "data")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.ttl", 7*24*time.Hour)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate enforces required values and reasonable limits. Job settings are
// checked separately by ValidateJob since the verify command needs none.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Proxies.VerifySample < 0 {
		errs = append(errs, fmt.Errorf("proxies.verify_sample must be >= 0"))
	}
	if c.Proxies.VerifyGap < 0 || c.Proxies.VerifyTimeout < 0 {
		errs = append(errs, fmt.Errorf("proxies verify durations must not be negative"))
	}
	if err := c.BatchConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if c.Engine.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.request_timeout must be > 0"))
	}

	switch c.Store.Backend {
	case StoreNone:
	case StoreFS:
		if strings.TrimSpace(c.Store.Dir) == "" {
			errs = append(errs, fmt.Errorf("store.dir must be set for the fs backend"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("store.redis_addr must be set for the redis backend"))
		}
		if c.Store.TTL < 0 {
			errs = append(errs, fmt.Errorf("store.ttl must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of none, fs, redis (got %q)", c.Store.Backend))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr must be set when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// ValidateJob checks the settings the run command needs.
func (c Config) ValidateJob() error {
	var errs []error

	if strings.TrimSpace(c.Job.Vendor) == "" {
		errs = append(errs, fmt.Errorf("job.vendor is required"))
	}
	if c.Job.Request.URL == "" {
		errs = append(errs, fmt.Errorf("job.request.url is required"))
	}
	if c.Job.RowsFile == "" {
		if c.Job.RangeField == "" {
			errs = append(errs, fmt.Errorf("job.range_field is required without job.rows_file"))
		}
		if c.Job.RangeTo <= c.Job.RangeFrom {
			errs = append(errs, fmt.Errorf("job.range_to must be greater than job.range_from without job.rows_file"))
		}
	}

	return errors.Join(errs...)
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// BatchConfig returns the engine configuration.
func (c Config) BatchConfig() batch.Config {
	e := c.Engine
	return batch.Config{
		Method:         e.Method,
		RetryBudget:    e.RetryBudget,
		BucketCapacity: e.BucketCapacity,
		RefillRate:     e.RefillRate,
		Backoff:        e.Backoff,
		MaxWait:        e.MaxWait,
		MaxConcurrency: e.MaxConcurrency,
		PassBackoff: batch.BackoffConfig{
			Initial:    e.PassBackoffInitial,
			Max:        e.PassBackoffMax,
			Multiplier: e.PassBackoffMultiplier,
		},
		Deadline: e.Deadline,
	}
}

// ClientConfig returns the transport configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Timeout = c.Engine.RequestTimeout
	cfg.UserAgent = c.Engine.UserAgent
	return cfg
}

// ProxyOptions returns the pool options for the self-test settings.
func (c Config) ProxyOptions() []proxy.Option {
	var opts []proxy.Option
	if c.Proxies.EchoURL != "" {
		opts = append(opts, proxy.WithEchoURL(c.Proxies.EchoURL))
	}
	if c.Proxies.VerifyTimeout > 0 {
		opts = append(opts, proxy.WithVerifyTimeout(c.Proxies.VerifyTimeout))
	}
	return opts
}

// Rows loads the job's input rows.
func (c Config) Rows() ([]request.Row, error) {
	if c.Job.RowsFile != "" {
		return request.LoadRowsFile(c.Job.RowsFile)
	}
	return request.RangeRows(c.Job.RangeField, c.Job.RangeFrom, c.Job.RangeTo), nil
}
