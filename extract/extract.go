// Package extract defines the extraction collaborator consumed by the
// scheduler and provides a headless-browser implementation.
package extract

import (
	"context"
	"time"

	"github.com/aluiziolira/product-extractor/models"
)

// Extractor produces a payload for one product descriptor. Implementations
// must be safe for concurrent calls with independent descriptors; shared
// state beyond read-only configuration is not allowed. The scheduler treats
// a panic from Extract the same as a returned error.
type Extractor interface {
	Extract(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error)
}

// Func adapts a plain function to the Extractor interface.
type Func func(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error) {
	return f(ctx, d)
}
