package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/product-extractor/models"
)

// Selector heuristics are deliberately thin; product pages vary too much
// for anything clever to survive. Anything a page doesn't expose is simply
// absent from the payload and shows up as a lower confidence score.

// ParsePayload extracts the product payload from a page. The descriptor
// name is the title fallback when the page offers none.
func ParsePayload(html string, d models.ProductDescriptor) (models.Payload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page for %q: %w", d.Name, err)
	}

	p := models.Payload{}

	title := firstText(doc,
		"h1",
		"[class*='product-title']",
		"[class*='product-name']",
	)
	if title == "" {
		title = metaContent(doc, `meta[property="og:title"]`)
	}
	if title == "" {
		title = strings.TrimSpace(d.Name)
	}
	if title != "" {
		p[models.KeyTitle] = title
	}

	setIfPresent(p, models.KeySKU, firstText(doc, "[class*='sku']", "[itemprop='sku']"))
	setIfPresent(p, models.KeyBrand, firstText(doc, "[class*='brand']", "[itemprop='brand']"))
	setIfPresent(p, models.KeySupplier, firstText(doc, "[class*='supplier']", "[class*='vendor']"))

	description := metaContent(doc, `meta[name="description"]`)
	if description == "" {
		description = firstText(doc, "[class*='description']", "[itemprop='description']")
	}
	setIfPresent(p, models.KeyDescription, description)

	if attrs := parseAttributes(doc); len(attrs) > 0 {
		p[models.KeyAttributes] = attrs
	}

	image := metaContent(doc, `meta[property="og:image"]`)
	if image == "" {
		if src, ok := doc.Find("[class*='product'] img, img").First().Attr("src"); ok {
			image = strings.TrimSpace(src)
		}
	}
	setIfPresent(p, models.KeyImageURL, image)

	if d.Category != "" {
		p["category"] = d.Category
	}
	if d.URL != "" {
		p["url"] = d.URL
	}

	return p, nil
}

// parseAttributes reads spec tables of the form th/td (or td/td) into a map.
func parseAttributes(doc *goquery.Document) map[string]any {
	attrs := make(map[string]any)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if key != "" && value != "" {
			attrs[key] = value
		}
	})
	return attrs
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	if content, ok := doc.Find(selector).First().Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

func setIfPresent(p models.Payload, key, value string) {
	if value != "" {
		p[key] = value
	}
}
