package config

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Postgres.URL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected Postgres.URL: %q", cfg.Postgres.URL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Fatalf("unexpected Store.Driver default: %q", cfg.Store.Driver)
	}
	if cfg.Postgres.MaxConns != 4 {
		t.Fatalf("unexpected Postgres.MaxConns default: %d", cfg.Postgres.MaxConns)
	}
	if cfg.Dispatch.Mode != ModeQueue || cfg.Dispatch.MaxAttempts != 3 || cfg.Dispatch.RetryDelay() != 60*time.Second {
		t.Fatalf("unexpected Dispatch defaults: %+v", cfg.Dispatch)
	}
	if cfg.Provider.MaxAttempts != 3 || cfg.Provider.BackoffMin() != 2*time.Second || cfg.Provider.BackoffMax() != 10*time.Second {
		t.Fatalf("unexpected Provider defaults: %+v", cfg.Provider)
	}
	if cfg.Provider.Timeout() != 10*time.Second {
		t.Fatalf("unexpected Provider timeout: %v", cfg.Provider.Timeout())
	}
	if cfg.Provider.EmailURL != "https://www.mailplus.app/api/email" || cfg.Provider.TextURL != "https://www.provider.app/api/messages" {
		t.Fatalf("unexpected Provider URLs: %+v", cfg.Provider)
	}
	if cfg.Sweep.Interval() != 120*time.Second || cfg.Sweep.BatchSize != 50 || cfg.Sweep.StaleAfter() != 5*time.Minute {
		t.Fatalf("unexpected Sweep defaults: %+v", cfg.Sweep)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL() != 24*time.Hour {
		t.Fatalf("unexpected Redis defaults: %+v", cfg.Redis)
	}
	if cfg.Worker.Queue != "messages" || cfg.Worker.Concurrency != 10 {
		t.Fatalf("unexpected Worker defaults: %+v", cfg.Worker)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected Log defaults: %+v", cfg.Log)
	}
}

func TestLoadAll_Overrides(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/relay.db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")
	t.Setenv("DISPATCH_MODE", "inline")
	t.Setenv("DISPATCH_RETRY_DELAY_SECONDS", "5")
	t.Setenv("PROVIDER_EMAIL_URL", "http://localhost:9000/email")
	t.Setenv("WORKER_QUEUE", "outbound")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Store.Driver != DriverSQLite || cfg.SQLite.Path != "/tmp/relay.db" {
		t.Fatalf("unexpected store config: %+v %+v", cfg.Store, cfg.SQLite)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Password != "secret" || cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis config: %+v", cfg.Redis)
	}
	if cfg.Redis.TTL() != 42*time.Second {
		t.Fatalf("unexpected Redis.TTL: %v", cfg.Redis.TTL())
	}
	if cfg.Dispatch.Mode != ModeInline || cfg.Dispatch.RetryDelay() != 5*time.Second {
		t.Fatalf("unexpected Dispatch config: %+v", cfg.Dispatch)
	}
	if cfg.Provider.EmailURL != "http://localhost:9000/email" {
		t.Fatalf("unexpected Provider.EmailURL: %q", cfg.Provider.EmailURL)
	}
	if cfg.Worker.Queue != "outbound" {
		t.Fatalf("unexpected Worker.Queue: %q", cfg.Worker.Queue)
	}
}

func TestLoadAll_PostgresURLRequiredForPostgres(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "POSTGRES_URL") {
		t.Fatalf("expected error mentioning POSTGRES_URL, got: %v", err)
	}

	t.Setenv("STORE_DRIVER", "sqlite")
	if _, err := LoadAll(); err != nil {
		t.Fatalf("sqlite should not need POSTGRES_URL, got: %v", err)
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []string{
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"DISPATCH_MAX_ATTEMPTS",
		"PROVIDER_TIMEOUT_SECONDS",
		"SWEEP_BATCH_SIZE",
		"POSTGRES_MAX_CONNS",
	}

	for _, key := range cases {
		t.Run(key, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
			t.Setenv(key, "abc")

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error mentioning %s, got: %v", key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		key  string
		val  string
		want string
	}{
		{"SWEEP_BATCH_SIZE", "0", "SWEEP_BATCH_SIZE"},
		{"SWEEP_INTERVAL_SECONDS", "0", "SWEEP_INTERVAL_SECONDS"},
		{"DISPATCH_MAX_ATTEMPTS", "0", "DISPATCH_MAX_ATTEMPTS"},
		{"DISPATCH_MODE", "carrier-pigeon", "DISPATCH_MODE"},
		{"STORE_DRIVER", "mysql", "STORE_DRIVER"},
		{"PROVIDER_BACKOFF_MAX_SECONDS", "1", "PROVIDER_BACKOFF_MAX_SECONDS"},
		{"DISPATCH_RETRY_DELAY_SECONDS", "-1", "DISPATCH_RETRY_DELAY_SECONDS"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{Driver: DriverPostgres},
		Postgres: PostgresConfig{MaxConns: 1},
		Dispatch: DispatchConfig{Mode: ModeQueue},
	}

	err := validate(cfg)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, key := range []string{"POSTGRES_URL", "SWEEP_BATCH_SIZE", "WORKER_QUEUE", "PROVIDER_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error mentioning %s, got: %v", key, err)
		}
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS",
		"STORE_DRIVER",
		"POSTGRES_URL",
		"POSTGRES_MAX_CONNS",
		"SQLITE_PATH",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
		"DISPATCH_MODE",
		"DISPATCH_MAX_ATTEMPTS",
		"DISPATCH_RETRY_DELAY_SECONDS",
		"WORKER_CONCURRENCY",
		"WORKER_QUEUE",
		"PROVIDER_EMAIL_URL",
		"PROVIDER_TEXT_URL",
		"PROVIDER_TIMEOUT_SECONDS",
		"PROVIDER_MAX_ATTEMPTS",
		"PROVIDER_BACKOFF_MIN_SECONDS",
		"PROVIDER_BACKOFF_MAX_SECONDS",
		"SWEEP_INTERVAL_SECONDS",
		"SWEEP_BATCH_SIZE",
		"SWEEP_STALE_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}
