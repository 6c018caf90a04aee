// Package validate scores and validates extraction results.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/product-extractor/models"
)

// Key fields checked by the confidence scorer. The attributes map scores
// only when non-empty.
var scoredFields = []string{
	models.KeyTitle,
	models.KeySKU,
	models.KeyBrand,
	models.KeySupplier,
	models.KeyDescription,
	models.KeyAttributes,
}

const imageBonusWeight = 0.5

// ConfidenceScore rates payload completeness on a 0-100 scale. Each of the
// six key fields contributes one point when present; a produced image adds
// a half point to both sides of the ratio.
func ConfidenceScore(p models.Payload) float64 {
	score := 0.0
	total := float64(len(scoredFields))

	for _, field := range scoredFields {
		if p.Has(field) {
			score += 1.0
		}
	}

	if p.HasImage() {
		score += imageBonusWeight
		total += imageBonusWeight
	}

	if total == 0 {
		return 0
	}
	return (score / total) * 100
}

// Validator applies the quality rules to completed extraction results.
type Validator struct {
	// ConfidenceThreshold flags results scoring below it.
	ConfidenceThreshold float64

	// SlowExtractionLimit flags extractions that took longer than it.
	SlowExtractionLimit time.Duration
}

// New returns a Validator with the given threshold and the default 60s slow
// limit.
func New(confidenceThreshold float64) Validator {
	return Validator{
		ConfidenceThreshold: confidenceThreshold,
		SlowExtractionLimit: 60 * time.Second,
	}
}

// Validate applies the rules in order and returns the result with its
// validation status set. It is pure: the input is copied, never mutated, and
// re-validating an already validated result yields the same status.
func (v Validator) Validate(r models.ExtractionResult) models.ExtractionResult {
	if !r.Success {
		r.ValidationStatus = models.ValidationFailed
		return r
	}

	var issues []string

	if len(r.Payload) == 0 {
		issues = append(issues, "no result data")
	}
	if r.ConfidenceScore != nil && *r.ConfidenceScore < v.ConfidenceThreshold {
		issues = append(issues, fmt.Sprintf("low confidence score: %.1f", *r.ConfidenceScore))
	}
	if v.SlowExtractionLimit > 0 && r.ExtractionTime > v.SlowExtractionLimit {
		issues = append(issues, fmt.Sprintf("slow extraction: %.2fs", r.ExtractionTime.Seconds()))
	}
	if len(r.Payload) > 0 && !r.Payload.Has(models.KeyTitle) {
		issues = append(issues, "missing required field: "+models.KeyTitle)
	}

	if len(issues) > 0 {
		r.ValidationStatus = models.ValidationIssues
		r.ErrorMessage = strings.Join(issues, "; ")
	} else {
		r.ValidationStatus = models.ValidationValidated
	}
	return r
}
