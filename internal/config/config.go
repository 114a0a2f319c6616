package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ModeQueue  = "queue"
	ModeInline = "inline"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
	Worker   WorkerConfig
	Provider ProviderConfig
	Sweep    SweepConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string `default:":8080"`
}

type StoreConfig struct {
	Driver string `default:"postgres"`
}

type PostgresConfig struct {
	URL      string
	MaxConns int32 `split_words:"true" default:"4"`
}

type SQLiteConfig struct {
	Path string `default:"relay.db"`
}

type RedisConfig struct {
	Addr       string `default:"localhost:6379"`
	Password   string
	DB         int `default:"0"`
	TTLSeconds int `envconfig:"TTL_SECONDS" default:"86400"`
}

func (c RedisConfig) TTL() time.Duration { return seconds(c.TTLSeconds) }

type DispatchConfig struct {
	Mode              string `default:"queue"`
	MaxAttempts       int    `split_words:"true" default:"3"`
	RetryDelaySeconds int    `split_words:"true" default:"60"`
}

func (c DispatchConfig) RetryDelay() time.Duration { return seconds(c.RetryDelaySeconds) }

type WorkerConfig struct {
	Concurrency int    `default:"10"`
	Queue       string `default:"messages"`
}

type ProviderConfig struct {
	EmailURL          string `split_words:"true" default:"https://www.mailplus.app/api/email"`
	TextURL           string `split_words:"true" default:"https://www.provider.app/api/messages"`
	TimeoutSeconds    int    `split_words:"true" default:"10"`
	MaxAttempts       int    `split_words:"true" default:"3"`
	BackoffMinSeconds int    `split_words:"true" default:"2"`
	BackoffMaxSeconds int    `split_words:"true" default:"10"`
}

func (c ProviderConfig) Timeout() time.Duration    { return seconds(c.TimeoutSeconds) }
func (c ProviderConfig) BackoffMin() time.Duration { return seconds(c.BackoffMinSeconds) }
func (c ProviderConfig) BackoffMax() time.Duration { return seconds(c.BackoffMaxSeconds) }

type SweepConfig struct {
	IntervalSeconds int `split_words:"true" default:"120"`
	BatchSize       int `split_words:"true" default:"50"`
	StaleSeconds    int `split_words:"true" default:"300"`
}

func (c SweepConfig) Interval() time.Duration   { return seconds(c.IntervalSeconds) }
func (c SweepConfig) StaleAfter() time.Duration { return seconds(c.StaleSeconds) }

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"text"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// LoadAll reads the environment. Every invalid setting is reported, not just the first.
func LoadAll() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Postgres.URL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when STORE_DRIVER=postgres"))
		}
		if cfg.Postgres.MaxConns <= 0 {
			errs = append(errs, errors.New("POSTGRES_MAX_CONNS must be > 0"))
		}
	case DriverSQLite:
		if cfg.SQLite.Path == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Store.Driver))
	}

	if cfg.Dispatch.Mode != ModeQueue && cfg.Dispatch.Mode != ModeInline {
		errs = append(errs, fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", ModeQueue, ModeInline, cfg.Dispatch.Mode))
	}

	positive := []struct {
		key string
		val int
	}{
		{"REDIS_TTL_SECONDS", cfg.Redis.TTLSeconds},
		{"DISPATCH_MAX_ATTEMPTS", cfg.Dispatch.MaxAttempts},
		{"WORKER_CONCURRENCY", cfg.Worker.Concurrency},
		{"PROVIDER_TIMEOUT_SECONDS", cfg.Provider.TimeoutSeconds},
		{"PROVIDER_MAX_ATTEMPTS", cfg.Provider.MaxAttempts},
		{"PROVIDER_BACKOFF_MIN_SECONDS", cfg.Provider.BackoffMinSeconds},
		{"SWEEP_INTERVAL_SECONDS", cfg.Sweep.IntervalSeconds},
		{"SWEEP_BATCH_SIZE", cfg.Sweep.BatchSize},
		{"SWEEP_STALE_SECONDS", cfg.Sweep.StaleSeconds},
	}
	for _, p := range positive {
		if p.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.key))
		}
	}

	if cfg.Dispatch.RetryDelaySeconds < 0 {
		errs = append(errs, errors.New("DISPATCH_RETRY_DELAY_SECONDS must be >= 0"))
	}
	if cfg.Provider.BackoffMaxSeconds < cfg.Provider.BackoffMinSeconds {
		errs = append(errs, errors.New("PROVIDER_BACKOFF_MAX_SECONDS must be >= PROVIDER_BACKOFF_MIN_SECONDS"))
	}
	if cfg.Worker.Queue == "" {
		errs = append(errs, errors.New("WORKER_QUEUE must not be empty"))
	}
	if cfg.Provider.EmailURL == "" || cfg.Provider.TextURL == "" {
		errs = append(errs, errors.New("PROVIDER_EMAIL_URL and PROVIDER_TEXT_URL must not be empty"))
	}

	return errors.Join(errs...)
}
