// Package config 載入服務配置
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Env string `yaml:"env"`

	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Redis struct {
		Addr         string        `yaml:"addr"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		MaxRetries   int           `yaml:"max_retries"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"redis"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Neo4j struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"neo4j"`

	NATS struct {
		URL        string `yaml:"url"`
		QueueGroup string `yaml:"queue_group"`
	} `yaml:"nats"`

	Counter struct {
		KeyPrefix        string        `yaml:"key_prefix"`
		CacheTTL         time.Duration `yaml:"cache_ttl"`
		StoreReadTimeout time.Duration `yaml:"store_read_timeout"`
	} `yaml:"counter"`

	Sync struct {
		Interval     time.Duration `yaml:"interval"`
		BatchSize    int           `yaml:"batch_size"`
		FlushTimeout time.Duration `yaml:"flush_timeout"`
	} `yaml:"sync"`

	Feed struct {
		HotWindow       time.Duration `yaml:"hot_window"`
		MaxCandidates   int           `yaml:"max_candidates"`
		DefaultPageSize int           `yaml:"default_page_size"`
		MaxPageSize     int           `yaml:"max_page_size"`
		DefaultRadiusKm float64       `yaml:"default_radius_km"`
		MaxRadiusKm     float64       `yaml:"max_radius_km"`
	} `yaml:"feed"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 載入配置檔案
//
// 先載入 .env（若存在），再以環境變數展開 YAML 中的 ${VAR}。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	// #nosec G304 - path 來自啟動參數
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse 解析 YAML 內容並套用預設值
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 回傳全部使用預設值的配置
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 50
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 500 * time.Millisecond
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 500 * time.Millisecond
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 20
	}
	if c.Postgres.MinConns == 0 {
		c.Postgres.MinConns = 2
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "engagement-feed"
	}
	if c.Counter.KeyPrefix == "" {
		c.Counter.KeyPrefix = "content:counters:"
	}
	if c.Counter.CacheTTL == 0 {
		c.Counter.CacheTTL = 24 * time.Hour
	}
	if c.Counter.StoreReadTimeout == 0 {
		c.Counter.StoreReadTimeout = 200 * time.Millisecond
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 500
	}
	if c.Sync.FlushTimeout == 0 {
		c.Sync.FlushTimeout = 30 * time.Second
	}
	if c.Feed.HotWindow == 0 {
		c.Feed.HotWindow = 7 * 24 * time.Hour
	}
	if c.Feed.MaxCandidates == 0 {
		c.Feed.MaxCandidates = 5000
	}
	if c.Feed.DefaultPageSize == 0 {
		c.Feed.DefaultPageSize = 20
	}
	if c.Feed.MaxPageSize == 0 {
		c.Feed.MaxPageSize = 100
	}
	if c.Feed.DefaultRadiusKm == 0 {
		c.Feed.DefaultRadiusKm = 10
	}
	if c.Feed.MaxRadiusKm == 0 {
		c.Feed.MaxRadiusKm = 100
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Feed.DefaultPageSize > c.Feed.MaxPageSize {
		return fmt.Errorf("feed.default_page_size (%d) exceeds feed.max_page_size (%d)",
			c.Feed.DefaultPageSize, c.Feed.MaxPageSize)
	}
	if c.Feed.DefaultRadiusKm > c.Feed.MaxRadiusKm {
		return fmt.Errorf("feed.default_radius_km (%g) exceeds feed.max_radius_km (%g)",
			c.Feed.DefaultRadiusKm, c.Feed.MaxRadiusKm)
	}
	return nil
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}
