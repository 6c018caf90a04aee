package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aluiziolira/product-extractor/models"
	"github.com/aluiziolira/product-extractor/store"
)

const (
	summaryTimeLayout  = "2006-01-02 15:04:05"
	artifactTimeLayout = "20060102_150405"
)

var resultsHeader = []string{
	"product_name",
	"timestamp",
	"title",
	"brand",
	"supplier",
	"category",
	"sku",
	"description",
	"url",
	"image_url",
	"attributes",
	"extraction_time_seconds",
	"confidence_score",
	"validation_status",
	"retry_count",
	"error_message",
}

// buildSummary assembles the consolidated run summary from the recorded
// results and the finalized counters.
func (s *Scheduler) buildSummary(m models.RunMetrics) *models.RunSummary {
	records := make([]models.ResultRecord, len(s.results))
	validation := make(map[string]int)
	for i, r := range s.results {
		records[i] = resultRecord(r)
		validation[string(r.ValidationStatus)]++
	}

	return &models.RunSummary{
		ExtractionSummary: models.ExtractionSummary{
			TotalProducts:         m.TotalProducts,
			SuccessfulExtractions: m.SuccessfulExtractions,
			FailedExtractions:     m.FailedExtractions,
			RetriedExtractions:    m.RetriedExtractions,
			SuccessRate:           fmt.Sprintf("%.1f%%", m.SuccessRate),
			AverageExtractionTime: fmt.Sprintf("%.2fs", m.AverageExtractionTime.Seconds()),
			StartTime:             m.StartTime.Format(summaryTimeLayout),
			EndTime:               m.EndTime.Format(summaryTimeLayout),
		},
		DetailedResults:   records,
		ValidationSummary: validation,
	}
}

func resultRecord(r models.ExtractionResult) models.ResultRecord {
	return models.ResultRecord{
		ProductName:      r.ProductName,
		Success:          r.Success,
		Payload:          r.Payload,
		ErrorMessage:     r.ErrorMessage,
		Timestamp:        r.Timestamp.Format(summaryTimeLayout),
		FolderPath:       r.FolderPath,
		ExtractionTime:   r.ExtractionTime.Seconds(),
		RetryCount:       r.RetryCount,
		ConfidenceScore:  r.ConfidenceScore,
		ValidationStatus: string(r.ValidationStatus),
	}
}

// persistSummary writes the spreadsheet and JSON artifacts at the store
// root. The spreadsheet goes first so a failure there still shows up in the
// JSON's persistence failures. Both writes use a background context: the
// summary must land even after a cancelled run.
func (s *Scheduler) persistSummary(summary *models.RunSummary, m models.RunMetrics) {
	ctx := context.Background()
	stamp := m.EndTime.Format(artifactTimeLayout)

	xlsxKey := fmt.Sprintf("results_%s.xlsx", stamp)
	if err := s.store.PutTabular(ctx, xlsxKey, s.resultsTable()); err != nil {
		s.notePersistFailure("", xlsxKey, err)
	}

	summary.PersistenceFailures = append([]models.PersistenceFailure(nil), s.persistFails...)

	jsonKey := fmt.Sprintf("summary_%s.json", stamp)
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		s.notePersistFailure("", jsonKey, err)
	} else if err := s.store.PutObject(ctx, jsonKey, data, store.ContentTypeJSON); err != nil {
		s.notePersistFailure("", jsonKey, err)
	}

	// The returned summary reflects every failure, including the JSON
	// artifact's own.
	summary.PersistenceFailures = append([]models.PersistenceFailure(nil), s.persistFails...)
}

// resultsTable flattens the results into spreadsheet rows, one per product.
func (s *Scheduler) resultsTable() *store.Table {
	rows := make([][]any, 0, len(s.results))
	for _, r := range s.results {
		confidence := ""
		if r.ConfidenceScore != nil {
			confidence = fmt.Sprintf("%.1f", *r.ConfidenceScore)
		}
		rows = append(rows, []any{
			r.ProductName,
			r.Timestamp.Format(summaryTimeLayout),
			r.Payload.Field(models.KeyTitle),
			r.Payload.Field(models.KeyBrand),
			r.Payload.Field(models.KeySupplier),
			r.Payload.Field("category"),
			r.Payload.Field(models.KeySKU),
			r.Payload.Field(models.KeyDescription),
			r.Payload.Field("url"),
			r.Payload.Field(models.KeyImageURL),
			formatAttributes(r.Payload.Attributes()),
			r.ExtractionTime.Seconds(),
			confidence,
			string(r.ValidationStatus),
			r.RetryCount,
			r.ErrorMessage,
		})
	}
	return &store.Table{
		Sheet:  "Results",
		Header: resultsHeader,
		Rows:   rows,
	}
}

// formatAttributes renders the attributes map as "key=value; ..." with keys
// sorted for stable output.
func formatAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return strings.Join(parts, "; ")
}
