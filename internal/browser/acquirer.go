package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/fetcher"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/robots"
)

// ErrBlockedByRobots is returned when the robots gate denies the detail page.
var ErrBlockedByRobots = errors.New("blocked by robots.txt")

// pause between best-effort interaction steps, giving the page time to
// re-render before the next control is looked up.
const interactionPause = time.Second

// Acquirer drives a headless Chrome session through the review feed of an
// app's detail page and returns the final markup snapshot once incremental
// loading stabilises or the scroll budget runs out.
type Acquirer struct {
	cfg       config.ScrapeConfig
	semaphore chan struct{}
	limiter   *rate.Limiter
	robots    *robots.Agent
	probe     *fetcher.Probe
	logger    *slog.Logger
}

// NewAcquirer constructs an acquirer with bounded concurrent sessions.
// The robots agent and probe are optional.
func NewAcquirer(cfg config.ScrapeConfig, robotsAgent *robots.Agent, probe *fetcher.Probe, logger *slog.Logger) *Acquirer {
	if cfg.NavigationTimeout.IsZero() {
		cfg.NavigationTimeout = config.DurationFrom(60 * time.Second)
	}
	if cfg.ConcurrentSessions <= 0 {
		cfg.ConcurrentSessions = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled() {
		interval := cfg.RateLimit.Window.Duration / time.Duration(cfg.RateLimit.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		limiter = rate.NewLimiter(rate.Every(interval), cfg.RateLimit.Requests)
	}

	return &Acquirer{
		cfg:       cfg,
		semaphore: make(chan struct{}, cfg.ConcurrentSessions),
		limiter:   limiter,
		robots:    robotsAgent,
		probe:     probe,
		logger:    logger,
	}
}

// DetailURL builds the detail-page URL for an app id.
func (a *Acquirer) DetailURL(appID string) (*url.URL, error) {
	base, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := base.Query()
	q.Set("id", appID)
	if a.cfg.Language != "" {
		q.Set("hl", a.cfg.Language)
	}
	base.RawQuery = q.Encode()
	return base, nil
}

// Acquire opens the app's detail page, performs the review-feed interaction
// sequence, scrolls until the markup stops changing or the budget expires,
// and returns the last captured markup.
func (a *Acquirer) Acquire(parentCtx context.Context, appID string) (string, error) {
	target, err := a.DetailURL(appID)
	if err != nil {
		return "", err
	}

	logger := a.logger.With("app_id", appID, "url", target.String())

	select {
	case a.semaphore <- struct{}{}:
		defer func() { <-a.semaphore }()
	case <-parentCtx.Done():
		return "", parentCtx.Err()
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(parentCtx); err != nil {
			return "", err
		}
	}

	if a.robots != nil && !a.robots.Allowed(parentCtx, target) {
		return "", ErrBlockedByRobots
	}

	if a.probe != nil {
		if result, err := a.probe.Check(parentCtx, target); err != nil {
			// The browser may still succeed where the probe failed.
			logger.Warn("probe failed, continuing with browser session", "error", err)
		} else if result.StatusCode == 404 {
			return "", fmt.Errorf("app %q not found (status 404)", appID)
		}
	}

	sessionBudget := a.cfg.NavigationTimeout.Duration + a.cfg.ScrollBudget.Duration
	ctx, cancel := context.WithTimeout(parentCtx, sessionBudget)
	defer cancel()

	headless := !a.cfg.DisableHeadless
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if ua := strings.TrimSpace(a.cfg.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	start := time.Now()

	actions := []chromedp.Action{
		chromedp.Navigate(target.String()),
		waitForDocumentReady(logger),
	}
	if !a.cfg.SettleDelay.IsZero() {
		actions = append(actions, chromedp.Sleep(a.cfg.SettleDelay.Duration))
	}
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		logger.Error("navigation failed", "error", err)
		return "", fmt.Errorf("navigate %s: %w", target, err)
	}

	// Interaction steps are best-effort: a missing or renamed control must
	// not abort the job, it just degrades to the default review view.
	for _, text := range a.cfg.Interactions {
		a.clickVisible(chromeCtx, logger, text)
	}

	html, err := scrollUntilStable(chromeCtx, a.cfg.ScrollBudget.Duration, a.captureStep(logger))
	if err != nil {
		logger.Error("scroll capture failed", "error", err)
		return "", fmt.Errorf("capture markup: %w", err)
	}
	if html == "" {
		return "", errors.New("no markup captured")
	}
	if int64(len(html)) > a.cfg.MaxBodyBytes {
		html = capBytes(html, int(a.cfg.MaxBodyBytes))
	}

	logger.Debug("acquisition complete",
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(html),
	)
	return html, nil
}

// clickVisible clicks the first element whose text matches, bounded by the
// interaction timeout. Failure is logged and swallowed.
func (a *Acquirer) clickVisible(ctx context.Context, logger *slog.Logger, text string) {
	timeout := a.cfg.InteractionTimeout.Duration
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expr := fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(text))
	err := chromedp.Run(stepCtx,
		chromedp.Click(expr, chromedp.BySearch),
		chromedp.Sleep(interactionPause),
	)
	if err != nil {
		logger.Warn("interaction step skipped", "control", text, "error", err)
		return
	}
	logger.Debug("interaction step done", "control", text)
}

// captureStep returns one scroll-pause-capture round against the live page.
func (a *Acquirer) captureStep(logger *slog.Logger) captureFunc {
	scrollExpr := fmt.Sprintf("window.scrollBy(0, %d)", a.cfg.ScrollStepPixels)
	pause := a.cfg.ScrollPause.Duration
	if pause <= 0 {
		pause = 100 * time.Millisecond
	}
	return func(ctx context.Context) (string, error) {
		var html string
		err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollExpr, nil),
			chromedp.Sleep(pause),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return "", err
		}
		return html, nil
	}
}

type captureFunc func(ctx context.Context) (string, error)

// scrollUntilStable repeats capture steps until two consecutive captures are
// byte-identical or the wall-clock budget expires, and returns the last
// capture. A step failure after at least one successful capture degrades to
// the markup already collected.
func scrollUntilStable(ctx context.Context, budget time.Duration, step captureFunc) (string, error) {
	start := time.Now()
	var last string
	for {
		html, err := step(ctx)
		if err != nil {
			if last != "" {
				return last, nil
			}
			return "", err
		}
		if html == last && last != "" {
			return last, nil
		}
		last = html
		if time.Since(start) > budget {
			return last, nil
		}
		if err := ctx.Err(); err != nil {
			if last != "" {
				return last, nil
			}
			return "", err
		}
	}
}

func waitForDocumentReady(logger *slog.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				if logger != nil {
					logger.Warn("waitForDocumentReady evaluate failed", "error", err)
				}
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// capBytes trims s to at most max bytes without splitting a rune.
func capBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// xpathLiteral quotes a string for embedding in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
