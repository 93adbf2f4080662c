package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != StorePostgres {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Manager.FetchConcurrency != 8 {
		t.Errorf("Manager.FetchConcurrency = %d, want 8", cfg.Manager.FetchConcurrency)
	}

	want := map[model.Kind]time.Duration{
		model.KindVideo:   3 * time.Hour,
		model.KindChannel: 48 * time.Hour,
		model.KindImage:   5 * time.Hour,
		model.KindCaption: 24 * time.Hour,
		model.KindStream:  time.Hour,
	}
	got := cfg.Staleness.Thresholds()
	for kind, d := range want {
		if got[kind] != d {
			t.Errorf("Staleness[%s] = %v, want %v", kind, got[kind], d)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_PATH", "/var/lib/fronttube/cache.db")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("STALENESS_VIDEO", "90m")
	t.Setenv("CACHE_CAPTION_CAPACITY", "42")
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != StoreSQLite || cfg.Store.Path != "/var/lib/fronttube/cache.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Staleness.Video != 90*time.Minute {
		t.Errorf("Staleness.Video = %v, want 90m", cfg.Staleness.Video)
	}
	if got := cfg.Cache.Capacity(model.KindCaption); got != 42 {
		t.Errorf("Capacity(caption) = %d, want 42", got)
	}
	if got := cfg.Redis.Addr(); got != "redis.internal:6379" {
		t.Errorf("Redis.Addr() = %q", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "unknown store", key: "STORE_DRIVER", value: "mysql", wantErr: "STORE_DRIVER"},
		{name: "unknown cache", key: "CACHE_BACKEND", value: "memcached", wantErr: "CACHE_BACKEND"},
		{name: "zero concurrency", key: "FETCH_CONCURRENCY", value: "0", wantErr: "FETCH_CONCURRENCY"},
		{name: "bad duration", key: "STALENESS_IMAGE", value: "soon", wantErr: "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, should contain %v", err, tt.wantErr)
			}
		})
	}
}

func TestDSNAndURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "ft", SSLMode: "require"}
	if got, want := db.DSN(), "postgres://u:p@db:5433/ft?sslmode=require"; got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	mq := RabbitMQConfig{User: "u", Password: "p", Host: "mq", Port: 5672, VHost: "/"}
	if got, want := mq.URL(), "amqp://u:p@mq:5672/"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestCacheConfig_PerKind(t *testing.T) {
	c := CacheConfig{StreamCapacity: 7, StreamTTL: time.Minute}
	if c.Capacity(model.KindStream) != 7 || c.TTL(model.KindStream) != time.Minute {
		t.Errorf("stream settings not selected: %d %v", c.Capacity(model.KindStream), c.TTL(model.KindStream))
	}
	if c.Capacity(model.KindUnknown) != 0 || c.TTL(model.KindUnknown) != 0 {
		t.Error("unknown kind should have no settings")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
