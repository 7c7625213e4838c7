package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	yaml := `
db:
  dsn: postgres://localhost/playreviews
queue:
  provider: memory
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DB.Driver != "postgres" {
		t.Errorf("expected default driver postgres, got %q", cfg.DB.Driver)
	}
	if cfg.Scrape.ScrollBudget.Duration != 5*time.Second {
		t.Errorf("expected default scroll budget 5s, got %s", cfg.Scrape.ScrollBudget)
	}
	if got := len(cfg.Scrape.Interactions); got != 3 {
		t.Errorf("expected 3 default interaction steps, got %d", got)
	}
	if cfg.Selectors.Author != "div.X5PpBb" {
		t.Errorf("unexpected default author selector %q", cfg.Selectors.Author)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Worker.Concurrency)
	}
}

func TestLoadFromReaderOverrides(t *testing.T) {
	yaml := `
db:
  dsn: postgres://localhost/playreviews
queue:
  provider: memory
  buffer: 8
scrape:
  scroll_budget: 9s
  scroll_pause: 250ms
  interactions:
    - "  See all reviews  "
    - ""
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scrape.ScrollBudget.Duration != 9*time.Second {
		t.Errorf("expected scroll budget 9s, got %s", cfg.Scrape.ScrollBudget)
	}
	if cfg.Scrape.ScrollPause.Duration != 250*time.Millisecond {
		t.Errorf("expected scroll pause 250ms, got %s", cfg.Scrape.ScrollPause)
	}
	if len(cfg.Scrape.Interactions) != 1 || cfg.Scrape.Interactions[0] != "See all reviews" {
		t.Errorf("expected interactions normalised to single trimmed step, got %v", cfg.Scrape.Interactions)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing dsn", func(c *Config) { c.DB.DSN = "" }},
		{"bad queue provider", func(c *Config) { c.Queue.Provider = "kafka" }},
		{"redis without host", func(c *Config) { c.Queue.Provider = "redis"; c.Queue.Redis.Host = "" }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"zero scroll budget", func(c *Config) { c.Scrape.ScrollBudget = Duration{} }},
		{"empty selector", func(c *Config) { c.Selectors.MetadataGroup = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.DB.DSN = "postgres://localhost/playreviews"
			cfg.Queue.Provider = "memory"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1500ms")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Duration != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Errorf("expected error for invalid duration")
	}
}
