package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
)

// Agent answers "may I open a browser session on this URL" using cached
// robots.txt rules. Hosts listed as overrides bypass the check entirely, and
// any failure to fetch or parse robots.txt fails open.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	overrides map[string]struct{}

	mu    sync.Mutex
	cache map[string]record
}

type record struct {
	expires time.Time
	rules   *robotstxt.RobotsData
}

// NewAgent constructs a robots agent. A nil client gets a default with a
// conservative timeout.
func NewAgent(cfg config.RobotsConfig, client *http.Client) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			overrides[host] = struct{}{}
		}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		overrides: overrides,
		cache:     make(map[string]record),
	}
}

// Allowed reports whether the target URL may be visited. Relative URLs are
// always rejected.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.overrides[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	rules, err := a.rulesFor(ctx, target)
	if err != nil {
		return true
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		if group = rules.FindGroup("*"); group == nil {
			return true
		}
	}
	return group.Test(target.Path)
}

func (a *Agent) rulesFor(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.Lock()
	cached, ok := a.cache[host]
	a.mu.Unlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.rules, nil
	}

	rules, err := a.fetch(ctx, target.Scheme+"://"+target.Host+"/robots.txt")
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[host] = record{expires: time.Now().Add(a.ttl), rules: rules}
	a.mu.Unlock()
	return rules, nil
}

func (a *Agent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}

	rules, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return rules, nil
}
