package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/product-extractor/config"
	"github.com/aluiziolira/product-extractor/models"
)

// RodExtractor fetches product pages with a headless Chromium instance and
// parses them into payloads. One browser is shared; each extraction opens
// its own page, so concurrent calls are independent. Fetched HTML is cached
// by URL so a retry of a descriptor with an unchanged URL skips the
// navigation.
type RodExtractor struct {
	browser   *rod.Browser
	launch    *launcher.Launcher
	cache     *lru.Cache[string, string]
	timeout   time.Duration
	searchURL string
}

// NewRodExtractor launches the browser and returns the extractor.
func NewRodExtractor(cfg *config.Config) (*RodExtractor, error) {
	cache, err := lru.New[string, string](cfg.PageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}

	l := launcher.New().
		Headless(cfg.HeadlessMode).
		NoSandbox(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RodExtractor{
		browser:   browser,
		launch:    l,
		cache:     cache,
		timeout:   cfg.ExtractionTimeout,
		searchURL: cfg.CatalogURL,
	}, nil
}

// Extract navigates to the descriptor's page and parses the payload.
func (e *RodExtractor) Extract(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error) {
	start := time.Now()

	target := d.URL
	if target == "" {
		target = e.searchTarget(d.Name)
	}
	if target == "" {
		return nil, time.Since(start), fmt.Errorf("no url for product %q", d.Name)
	}

	html, err := e.fetch(ctx, target)
	if err != nil {
		return nil, time.Since(start), err
	}

	payload, err := ParsePayload(html, d)
	if err != nil {
		return nil, time.Since(start), err
	}
	return payload, time.Since(start), nil
}

// Close shuts the browser down and removes its temp profile.
func (e *RodExtractor) Close() error {
	err := e.browser.Close()
	e.launch.Cleanup()
	return err
}

func (e *RodExtractor) fetch(ctx context.Context, target string) (string, error) {
	if html, ok := e.cache.Get(target); ok {
		slog.Debug("page cache hit", slog.String("url", target))
		return html, nil
	}

	page, err := stealth.Page(e.browser)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(e.timeout)
	if err := page.Navigate(target); err != nil {
		return "", fmt.Errorf("navigate %q: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for %q: %w", target, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html of %q: %w", target, err)
	}

	e.cache.Add(target, html)
	return html, nil
}

func (e *RodExtractor) searchTarget(name string) string {
	if e.searchURL == "" {
		return ""
	}
	u, err := url.Parse(e.searchURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("q", name)
	u.RawQuery = q.Encode()
	return u.String()
}
