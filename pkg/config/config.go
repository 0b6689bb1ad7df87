package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	DSN       string          `toml:"dsn"`
	Server    ServerConfig    `toml:"server"`
	Crawler   CrawlerConfig   `toml:"crawler"`
	Fetch     FetchConfig     `toml:"fetch"`
	PageCache PageCacheConfig `toml:"page_cache"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Chat      ChatConfig      `toml:"chat"`
	Blob      BlobConfig      `toml:"blob"`
	Worker    WorkerConfig    `toml:"worker"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	SigningKey string `toml:"signing_key"`
}

type CrawlerConfig struct {
	UserAgent string `toml:"user_agent"`
	MaxPages  int    `toml:"max_pages"`
	MaxDepth  int    `toml:"max_depth"`
	Workers   int    `toml:"workers"`
	Deadline  string `toml:"deadline"`
}

type FetchConfig struct {
	Timeout        string  `toml:"timeout"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	DeniedCooldown string  `toml:"denied_cooldown"`
}

type PageCacheConfig struct {
	TTL string `toml:"ttl"`
}

type RetrievalConfig struct {
	TopN        int `toml:"top_n"`
	ContextSize int `toml:"context_size"`
}

type ChatConfig struct {
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type BlobConfig struct {
	Root string `toml:"root"`
}

type WorkerConfig struct {
	Concurrency  int    `toml:"concurrency"`
	StuckHorizon string `toml:"stuck_horizon"`
	MaxAttempts  int    `toml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Load(path string) (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Crawler.UserAgent = "SitewiseBot/1.0"
	cfg.Crawler.MaxPages = 100
	cfg.Crawler.MaxDepth = 3
	cfg.Crawler.Workers = 4
	cfg.Crawler.Deadline = "5m"
	cfg.Fetch.Timeout = "10s"
	cfg.Fetch.RequestsPerSec = 5
	cfg.Fetch.DeniedCooldown = "5s"
	cfg.PageCache.TTL = "6h"
	cfg.Retrieval.TopN = 5
	cfg.Retrieval.ContextSize = 12000
	cfg.Chat.Model = "gpt-4o"
	cfg.Chat.MaxTokens = 1024
	cfg.Blob.Root = "data/blobs"
	cfg.Worker.Concurrency = 2
	cfg.Worker.StuckHorizon = "30m"
	cfg.Worker.MaxAttempts = 3
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "info"

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv("SITEWISE_DSN"); dsn != "" {
		cfg.DSN = dsn
	}
	if key := os.Getenv("SITEWISE_SIGNING_KEY"); key != "" {
		cfg.Server.SigningKey = key
	}

	return &cfg, nil
}

func (c *FetchConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c *FetchConfig) GetDeniedCooldown() time.Duration {
	return parseDuration(c.DeniedCooldown, 5*time.Second)
}

func (c *PageCacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 6*time.Hour)
}

func (c *CrawlerConfig) GetDeadline() time.Duration {
	return parseDuration(c.Deadline, 5*time.Minute)
}

func (c *WorkerConfig) GetStuckHorizon() time.Duration {
	return parseDuration(c.StuckHorizon, 30*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
