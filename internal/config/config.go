package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/hszk-dev/fronttube/internal/domain/model"
)

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Server    ServerConfig
	Worker    WorkerConfig
	Manager   ManagerConfig
	Cache     CacheConfig
	Staleness StalenessConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Invidious InvidiousConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBatch        int           `envconfig:"API_MAX_BATCH" default:"50"`
	RateLimit       int           `envconfig:"API_RATE_LIMIT" default:"600"`
	RateLimitWindow time.Duration `envconfig:"API_RATE_LIMIT_WINDOW" default:"1m"`
}

type WorkerConfig struct {
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// ManagerConfig tunes provider fetches made by the cache managers.
type ManagerConfig struct {
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"8"`
	EnqueueTimeout   time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"2s"`
}

type CacheConfig struct {
	Backend         string        `envconfig:"CACHE_BACKEND" default:"memory"`
	VideoCapacity   int           `envconfig:"CACHE_VIDEO_CAPACITY" default:"1000"`
	VideoTTL        time.Duration `envconfig:"CACHE_VIDEO_TTL" default:"30m"`
	ChannelCapacity int           `envconfig:"CACHE_CHANNEL_CAPACITY" default:"500"`
	ChannelTTL      time.Duration `envconfig:"CACHE_CHANNEL_TTL" default:"1h"`
	ImageCapacity   int           `envconfig:"CACHE_IMAGE_CAPACITY" default:"2000"`
	ImageTTL        time.Duration `envconfig:"CACHE_IMAGE_TTL" default:"1h"`
	CaptionCapacity int           `envconfig:"CACHE_CAPTION_CAPACITY" default:"200"`
	CaptionTTL      time.Duration `envconfig:"CACHE_CAPTION_TTL" default:"30m"`
	StreamCapacity  int           `envconfig:"CACHE_STREAM_CAPACITY" default:"500"`
	StreamTTL       time.Duration `envconfig:"CACHE_STREAM_TTL" default:"10m"`
}

// Capacity returns the memory-tier capacity configured for kind.
func (c CacheConfig) Capacity(kind model.Kind) int {
	switch kind {
	case model.KindVideo:
		return c.VideoCapacity
	case model.KindChannel:
		return c.ChannelCapacity
	case model.KindImage:
		return c.ImageCapacity
	case model.KindCaption:
		return c.CaptionCapacity
	case model.KindStream:
		return c.StreamCapacity
	default:
		return 0
	}
}

// TTL returns the cache-tier TTL configured for kind.
func (c CacheConfig) TTL(kind model.Kind) time.Duration {
	switch kind {
	case model.KindVideo:
		return c.VideoTTL
	case model.KindChannel:
		return c.ChannelTTL
	case model.KindImage:
		return c.ImageTTL
	case model.KindCaption:
		return c.CaptionTTL
	case model.KindStream:
		return c.StreamTTL
	default:
		return 0
	}
}

type StalenessConfig struct {
	Video   time.Duration `envconfig:"STALENESS_VIDEO" default:"3h"`
	Channel time.Duration `envconfig:"STALENESS_CHANNEL" default:"48h"`
	Image   time.Duration `envconfig:"STALENESS_IMAGE" default:"5h"`
	Caption time.Duration `envconfig:"STALENESS_CAPTION" default:"24h"`
	Stream  time.Duration `envconfig:"STALENESS_STREAM" default:"1h"`
}

// Thresholds returns the configured staleness threshold per kind.
func (c StalenessConfig) Thresholds() map[model.Kind]time.Duration {
	return map[model.Kind]time.Duration{
		model.KindVideo:   c.Video,
		model.KindChannel: c.Channel,
		model.KindImage:   c.Image,
		model.KindCaption: c.Caption,
		model.KindStream:  c.Stream,
	}
}

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreBolt     = "bolt"
)

type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
	Path   string `envconfig:"STORE_PATH" default:"data/fronttube.db"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"fronttube"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"fronttube"`
	DBName   string `envconfig:"POSTGRES_DB" default:"fronttube"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MinIOConfig struct {
	Enabled      bool   `envconfig:"MINIO_ENABLED" default:"false"`
	Endpoint     string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey    string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey    string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket       string `envconfig:"MINIO_BUCKET" default:"fronttube-images"`
	UseSSL       bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	CreateBucket bool   `envconfig:"MINIO_CREATE_BUCKET" default:"true"`
}

type RabbitMQConfig struct {
	Enabled  bool   `envconfig:"RABBITMQ_ENABLED" default:"false"`
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"fronttube"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"fronttube"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"refresh_tasks"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type InvidiousConfig struct {
	BaseURL   string        `envconfig:"INVIDIOUS_BASE_URL" default:"https://yewtu.be"`
	Timeout   time.Duration `envconfig:"INVIDIOUS_TIMEOUT" default:"10s"`
	UserAgent string        `envconfig:"INVIDIOUS_USER_AGENT" default:"fronttube/1.0"`
	Rate      float64       `envconfig:"INVIDIOUS_RATE" default:"10"`
	Burst     int           `envconfig:"INVIDIOUS_BURST" default:"20"`
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want memory or redis", c.Cache.Backend)
	}
	switch c.Store.Driver {
	case StorePostgres, StoreSQLite, StoreBolt:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want postgres, sqlite or bolt", c.Store.Driver)
	}
	if c.Manager.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Manager.FetchConcurrency)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
