package listload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/product-extractor/models"
)

// defaultProductSelector matches the anchor variants product catalogs
// typically use.
const defaultProductSelector = "a.product-name, .product-item a, .product-card a, article.product a"

// CatalogLoader scrapes product names and links from a catalog page.
type CatalogLoader struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Selector  string

	collector *colly.Collector
}

// NewCatalogLoader builds a loader restricted to the catalog's host.
func NewCatalogLoader(catalogURL, userAgent string, timeout time.Duration) (*CatalogLoader, error) {
	parsed, err := url.Parse(catalogURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("catalog url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(userAgent),
	)
	collector.SetRequestTimeout(timeout)

	return &CatalogLoader{
		URL:       catalogURL,
		UserAgent: userAgent,
		Timeout:   timeout,
		Selector:  defaultProductSelector,
		collector: collector,
	}, nil
}

// Load visits the catalog page and returns the discovered descriptors,
// deduplicated and sorted by name.
func (l *CatalogLoader) Load(ctx context.Context) ([]models.ProductDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var products []models.ProductDescriptor
	var fetchErr error

	l.collector.OnHTML(l.Selector, func(e *colly.HTMLElement) {
		name := strings.TrimSpace(e.Text)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		products = append(products, models.ProductDescriptor{
			Name:   name,
			URL:    e.Request.AbsoluteURL(e.Attr("href")),
			Source: l.URL,
			Index:  len(products),
		})
	})

	l.collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch catalog (status %d): %w", status, err)
	})

	if err := l.collector.Visit(l.URL); err != nil {
		return nil, fmt.Errorf("visit catalog: %w", err)
	}
	l.collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	slog.Info("catalog scraped",
		slog.String("url", l.URL),
		slog.Int("products", len(products)),
	)

	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

// WithTransport swaps the HTTP transport, used by tests.
func (l *CatalogLoader) WithTransport(rt http.RoundTripper) {
	l.collector.WithTransport(rt)
}
