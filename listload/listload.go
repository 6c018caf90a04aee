// Package listload provides the product-list collaborators: a JSON file
// loader for lists produced by earlier runs and a catalog scraper for fresh
// lists.
package listload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/aluiziolira/product-extractor/models"
)

// Loader supplies the ordered product list for a run.
type Loader interface {
	Load(ctx context.Context) ([]models.ProductDescriptor, error)
}

// FileLoader reads descriptors from a JSON file. Three shapes are accepted:
// a bare array, {"products": [...]}, and {"data": [...]}. Entries may be
// objects or bare name strings. The result is sorted by name so runs over
// the same list are deterministic.
type FileLoader struct {
	Path string
}

// Load parses the file into descriptors.
func (l FileLoader) Load(ctx context.Context) ([]models.ProductDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read product list %q: %w", l.Path, err)
	}

	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse product list %q: %w", l.Path, err)
	}

	entries, err := listEntries(root)
	if err != nil {
		return nil, fmt.Errorf("product list %q: %w", l.Path, err)
	}

	products := make([]models.ProductDescriptor, 0, len(entries))
	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			if v != "" {
				products = append(products, models.ProductDescriptor{Name: v})
			}
		case map[string]any:
			d := descriptorFromMap(v)
			if d.Name != "" {
				products = append(products, d)
			}
		}
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func listEntries(root any) ([]any, error) {
	switch v := root.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if products, ok := v["products"].([]any); ok {
			return products, nil
		}
		if data, ok := v["data"].([]any); ok {
			return data, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON structure")
}

func descriptorFromMap(m map[string]any) models.ProductDescriptor {
	d := models.ProductDescriptor{
		Name:     stringField(m, "name"),
		URL:      stringField(m, "url"),
		Category: stringField(m, "category"),
		Source:   stringField(m, "source"),
	}
	if idx, ok := m["index"].(float64); ok {
		d.Index = int(idx)
	}
	return d
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
