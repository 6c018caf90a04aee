// Package models defines data structures for the extraction pipeline.
package models

import (
	"strings"
	"time"
)

// ProductDescriptor is the unit of work for one product. Descriptors are
// created by a list-loading collaborator and never mutated afterwards.
type ProductDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Index    int    `json:"index,omitempty" yaml:"index,omitempty"`
}

// ExtractionAttempt wraps a descriptor with its retry bookkeeping. Attempts
// are owned by the scheduler and mutated only when a retry is enqueued.
type ExtractionAttempt struct {
	Descriptor  ProductDescriptor
	RetryCount  int
	LastAttempt time.Time
}

// SanitizeName converts a product name into a storage-safe container name.
// Characters other than letters, digits, space, hyphen, and underscore are
// stripped; trailing spaces are removed and remaining spaces become
// underscores. Distinct names can collide after sanitization; the scheduler
// logs collisions and lets the last writer win.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimRight(b.String(), " ")
	return strings.ReplaceAll(cleaned, " ", "_")
}
