package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Redis     RedisConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Queue     QueueConfig
	Redirect  RedirectConfig
	Stats     StatsConfig
	Geo       GeoConfig
	RateLimit RateLimitConfig
	LinkCache LinkCacheConfig
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	Addr         string
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
}

type ServerConfig struct {
	Port            string
	BaseURL         string
	DefaultDomain   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

const (
	QueueModeDurable   = "durable"
	QueueModeInProcess = "inprocess"
)

type QueueConfig struct {
	Mode          string
	Name          string
	Concurrency   int
	InFlightLimit int
	MaxRetries    int
	StallTimeout  time.Duration
	SweepInterval time.Duration
	JobTimeout    time.Duration
	FailedLimit   int64
}

type RedirectConfig struct {
	DecisionTimeout time.Duration
	BannedURL       string
	NotFoundURL     string
}

type StatsConfig struct {
	CacheTTL time.Duration
}

type GeoConfig struct {
	DatabasePath string
}

const (
	RateLimitStoreRedis  = "redis"
	RateLimitStoreMemory = "memory"
)

type RateLimitConfig struct {
	// Store backs per-link rate-limit rules.
	Store string
	// API is the ulule formatted rate for the analytics API, e.g. "100-M".
	API string
}

type LinkCacheConfig struct {
	TTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_BASE_URL", "http://localhost:8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_TRUSTED_PROXIES", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_MAX_RETRIES", 3)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "root")
	v.SetDefault("DB_NAME", "kutt")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 30*time.Minute)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT_PATH", "")
	v.SetDefault("LOG_MAX_SIZE", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE", 28)
	v.SetDefault("LOG_COMPRESS", true)

	v.SetDefault("QUEUE_MODE", QueueModeDurable)
	v.SetDefault("QUEUE_NAME", "visit")
	v.SetDefault("QUEUE_CONCURRENCY", 12)
	v.SetDefault("QUEUE_IN_FLIGHT_LIMIT", 100)
	v.SetDefault("QUEUE_MAX_RETRIES", 1)
	v.SetDefault("QUEUE_STALL_TIMEOUT", 30*time.Second)
	v.SetDefault("QUEUE_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("QUEUE_JOB_TIMEOUT", 10*time.Second)
	v.SetDefault("QUEUE_FAILED_LIMIT", 1000)

	v.SetDefault("REDIRECT_DECISION_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIRECT_BANNED_URL", "")
	v.SetDefault("REDIRECT_NOT_FOUND_URL", "")

	v.SetDefault("STATS_CACHE_TTL", 30*time.Second)

	v.SetDefault("GEO_DATABASE_PATH", "")

	v.SetDefault("RATE_LIMIT_STORE", RateLimitStoreRedis)
	v.SetDefault("RATE_LIMIT_API", "300-M")

	v.SetDefault("LINK_CACHE_TTL", 5*time.Minute)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("Warning: .env file not found, using default values")
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	redisConfig := RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetString("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
	}

	redisConfig.Addr = fmt.Sprintf("%s:%s", redisConfig.Host, redisConfig.Port)

	dbConfig := DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetString("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		MaxConns:        v.GetInt("DB_MAX_CONNS"),
		MinConns:        v.GetInt("DB_MIN_CONNS"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		MaxConnIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
	}

	dbConfig.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
	)

	baseURL := v.GetString("SERVER_BASE_URL")
	defaultDomain, err := hostOf(baseURL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			BaseURL:         baseURL,
			DefaultDomain:   defaultDomain,
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			TrustedProxies:  splitList(v.GetString("SERVER_TRUSTED_PROXIES")),
		},
		Redis:    redisConfig,
		Database: dbConfig,
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			OutputPath: v.GetString("LOG_OUTPUT_PATH"),
			MaxSize:    v.GetInt("LOG_MAX_SIZE"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAge:     v.GetInt("LOG_MAX_AGE"),
			Compress:   v.GetBool("LOG_COMPRESS"),
		},
		Queue: QueueConfig{
			Mode:          strings.ToLower(v.GetString("QUEUE_MODE")),
			Name:          v.GetString("QUEUE_NAME"),
			Concurrency:   v.GetInt("QUEUE_CONCURRENCY"),
			InFlightLimit: v.GetInt("QUEUE_IN_FLIGHT_LIMIT"),
			MaxRetries:    v.GetInt("QUEUE_MAX_RETRIES"),
			StallTimeout:  v.GetDuration("QUEUE_STALL_TIMEOUT"),
			SweepInterval: v.GetDuration("QUEUE_SWEEP_INTERVAL"),
			JobTimeout:    v.GetDuration("QUEUE_JOB_TIMEOUT"),
			FailedLimit:   v.GetInt64("QUEUE_FAILED_LIMIT"),
		},
		Redirect: RedirectConfig{
			DecisionTimeout: v.GetDuration("REDIRECT_DECISION_TIMEOUT"),
			BannedURL:       v.GetString("REDIRECT_BANNED_URL"),
			NotFoundURL:     v.GetString("REDIRECT_NOT_FOUND_URL"),
		},
		Stats: StatsConfig{
			CacheTTL: v.GetDuration("STATS_CACHE_TTL"),
		},
		Geo: GeoConfig{
			DatabasePath: v.GetString("GEO_DATABASE_PATH"),
		},
		RateLimit: RateLimitConfig{
			Store: strings.ToLower(v.GetString("RATE_LIMIT_STORE")),
			API:   v.GetString("RATE_LIMIT_API"),
		},
		LinkCache: LinkCacheConfig{
			TTL: v.GetDuration("LINK_CACHE_TTL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Queue.Mode {
	case QueueModeDurable, QueueModeInProcess:
	default:
		return fmt.Errorf("invalid QUEUE_MODE %q: want %s or %s", c.Queue.Mode, QueueModeDurable, QueueModeInProcess)
	}

	// A job still running past the stall timeout would be requeued and its
	// writes applied twice.
	if c.Queue.Mode == QueueModeDurable && c.Queue.JobTimeout >= c.Queue.StallTimeout {
		return fmt.Errorf("QUEUE_JOB_TIMEOUT (%s) must be shorter than QUEUE_STALL_TIMEOUT (%s)", c.Queue.JobTimeout, c.Queue.StallTimeout)
	}

	switch c.RateLimit.Store {
	case RateLimitStoreRedis, RateLimitStoreMemory:
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORE %q: want %s or %s", c.RateLimit.Store, RateLimitStoreRedis, RateLimitStoreMemory)
	}

	if c.Redirect.DecisionTimeout <= 0 {
		return fmt.Errorf("REDIRECT_DECISION_TIMEOUT must be positive")
	}
	return nil
}

func hostOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid SERVER_BASE_URL %q", baseURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
