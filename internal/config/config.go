package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run the review harvester.
type Config struct {
	DB        SQLConfig      `yaml:"db"`
	Queue     QueueConfig    `yaml:"queue"`
	Worker    WorkerConfig   `yaml:"worker"`
	Scrape    ScrapeConfig   `yaml:"scrape"`
	Selectors SelectorConfig `yaml:"selectors"`
	Robots    RobotsConfig   `yaml:"robots"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// SQLConfig describes the relational database used for jobs and reviews.
// Two logical pools are opened from the same DSN so that heavy review-batch
// transactions never starve job-status writes.
type SQLConfig struct {
	Driver          string     `yaml:"driver"`
	DSN             string     `yaml:"dsn"`
	ReviewPool      PoolConfig `yaml:"review_pool"`
	StatusPool      PoolConfig `yaml:"status_pool"`
	ConnMaxLifetime Duration   `yaml:"conn_max_lifetime"`
	CreateIfMissing bool       `yaml:"create_if_missing"`
	AutoMigrate     bool       `yaml:"auto_migrate"`
}

// PoolConfig sizes one database connection pool.
type PoolConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// QueueConfig selects the task queue backing the worker fleet.
type QueueConfig struct {
	Provider string      `yaml:"provider"`
	Buffer   int         `yaml:"buffer"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis-backed task queue.
type RedisConfig struct {
	Host     string   `yaml:"host"`
	Port     string   `yaml:"port"`
	DB       int      `yaml:"db"`
	Password string   `yaml:"password"`
	Key      string   `yaml:"key"`
	Timeout  Duration `yaml:"timeout"`
}

// WorkerConfig controls pipeline concurrency and queue sizing.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// ScrapeConfig controls the browser session and the incremental-load loop.
type ScrapeConfig struct {
	BaseURL            string          `yaml:"base_url"`
	Language           string          `yaml:"language"`
	UserAgent          string          `yaml:"user_agent"`
	NavigationTimeout  Duration        `yaml:"navigation_timeout"`
	SettleDelay        Duration        `yaml:"settle_delay"`
	InteractionTimeout Duration        `yaml:"interaction_timeout"`
	Interactions       []string        `yaml:"interactions"`
	ScrollBudget       Duration        `yaml:"scroll_budget"`
	ScrollPause        Duration        `yaml:"scroll_pause"`
	ScrollStepPixels   int             `yaml:"scroll_step_pixels"`
	ConcurrentSessions int             `yaml:"concurrent_sessions"`
	DisableHeadless    bool            `yaml:"disable_headless"`
	MaxBodyBytes       int64           `yaml:"max_body_bytes"`
	PersistTimeout     Duration        `yaml:"persist_timeout"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	ProbeEnabled       bool            `yaml:"probe_enabled"`
	ProbeTimeout       Duration        `yaml:"probe_timeout"`
}

// RateLimitConfig applies a token bucket to Play Store navigations.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether navigation rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// SelectorConfig names the DOM paths the extractor queries. The Play Store
// uses obfuscated, periodically rotated class names, so these live in
// configuration rather than code.
type SelectorConfig struct {
	Author        string `yaml:"author"`
	Content       string `yaml:"content"`
	MetadataGroup string `yaml:"metadata_group"`
	Rating        string `yaml:"rating"`
	HelpfulCount  string `yaml:"helpful_count"`
	PostedAt      string `yaml:"posted_at"`
	Reply         string `yaml:"reply"`
}

// RobotsConfig configures the optional robots.txt gate before acquisition.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		DB: SQLConfig{
			Driver:          "postgres",
			ReviewPool:      PoolConfig{MaxOpenConns: 10, MaxIdleConns: 4},
			StatusPool:      PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2},
			ConnMaxLifetime: DurationFrom(30 * time.Minute),
			AutoMigrate:     true,
		},
		Queue: QueueConfig{
			Provider: "redis",
			Buffer:   256,
			Redis: RedisConfig{
				Port:    "6379",
				Key:     "harvest:tasks",
				Timeout: DurationFrom(5 * time.Second),
			},
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   64,
		},
		Scrape: ScrapeConfig{
			BaseURL:            "https://play.google.com/store/apps/details",
			Language:           "en",
			UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36",
			NavigationTimeout:  DurationFrom(60 * time.Second),
			SettleDelay:        DurationFrom(2 * time.Second),
			InteractionTimeout: DurationFrom(3 * time.Second),
			Interactions:       []string{"See all reviews", "Most relevant", "Newest"},
			ScrollBudget:       DurationFrom(5 * time.Second),
			ScrollPause:        DurationFrom(100 * time.Millisecond),
			ScrollStepPixels:   10000,
			ConcurrentSessions: 2,
			MaxBodyBytes:       16 * 1024 * 1024,
			PersistTimeout:     DurationFrom(30 * time.Second),
			ProbeTimeout:       DurationFrom(10 * time.Second),
		},
		Selectors: SelectorConfig{
			Author:        "div.X5PpBb",
			Content:       "div.h3YV2d",
			MetadataGroup: "div.Jx4nYe",
			Rating:        "div.iXRFPc",
			HelpfulCount:  `div[jscontroller="wW2D8b"]`,
			PostedAt:      "span.bp9Aid",
			Reply:         "div.ras4vb",
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: "play-reviews-harvester/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file. The
// DB_URL environment variable, when set, overrides the configured DSN.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if dsn := strings.TrimSpace(os.Getenv("DB_URL")); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the harvester configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.Driver) == "" {
		return errors.New("db.driver must be set")
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return errors.New("db.dsn must be set (or provide DB_URL in the environment)")
	}
	switch c.Queue.Provider {
	case "redis":
		if strings.TrimSpace(c.Queue.Redis.Host) == "" {
			return errors.New("queue.redis.host must be set when queue.provider is redis")
		}
	case "memory":
		if c.Queue.Buffer <= 0 {
			return fmt.Errorf("queue.buffer must be > 0 (got %d)", c.Queue.Buffer)
		}
	default:
		return fmt.Errorf("unsupported queue provider %q", c.Queue.Provider)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be > 0 (got %d)", c.Worker.QueueSize)
	}
	if strings.TrimSpace(c.Scrape.BaseURL) == "" {
		return errors.New("scrape.base_url must be set")
	}
	if c.Scrape.ScrollBudget.IsZero() {
		return errors.New("scrape.scroll_budget must be > 0")
	}
	if c.Scrape.ScrollStepPixels <= 0 {
		return fmt.Errorf("scrape.scroll_step_pixels must be > 0 (got %d)", c.Scrape.ScrollStepPixels)
	}
	if c.Scrape.ConcurrentSessions <= 0 {
		return fmt.Errorf("scrape.concurrent_sessions must be > 0 (got %d)", c.Scrape.ConcurrentSessions)
	}
	if c.Scrape.MaxBodyBytes <= 0 {
		return fmt.Errorf("scrape.max_body_bytes must be > 0 (got %d)", c.Scrape.MaxBodyBytes)
	}
	if rl := c.Scrape.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("scrape.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	for _, sel := range []struct{ name, value string }{
		{"selectors.author", c.Selectors.Author},
		{"selectors.content", c.Selectors.Content},
		{"selectors.metadata_group", c.Selectors.MetadataGroup},
		{"selectors.rating", c.Selectors.Rating},
		{"selectors.helpful_count", c.Selectors.HelpfulCount},
		{"selectors.posted_at", c.Selectors.PostedAt},
		{"selectors.reply", c.Selectors.Reply},
	} {
		if strings.TrimSpace(sel.value) == "" {
			return fmt.Errorf("%s must be set", sel.name)
		}
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.DB.Driver = strings.TrimSpace(c.DB.Driver)
	c.DB.DSN = strings.TrimSpace(c.DB.DSN)
	c.Queue.Provider = strings.ToLower(strings.TrimSpace(c.Queue.Provider))
	c.Scrape.BaseURL = strings.TrimSpace(c.Scrape.BaseURL)
	c.Scrape.Language = strings.TrimSpace(c.Scrape.Language)
	c.Scrape.UserAgent = strings.TrimSpace(c.Scrape.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)

	cleaned := make([]string, 0, len(c.Scrape.Interactions))
	for _, step := range c.Scrape.Interactions {
		if step = strings.TrimSpace(step); step != "" {
			cleaned = append(cleaned, step)
		}
	}
	c.Scrape.Interactions = cleaned

	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
