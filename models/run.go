package models

import "time"

// RunState is the explicit state machine variable for a run. Transitions are
// monotonic except for the bounded retry sub-loop; Completed and Failed are
// terminal.
type RunState string

const (
	StateInitialized         RunState = "initialized"
	StateProductListLoaded   RunState = "product_list_loaded"
	StateFoldersCreated      RunState = "folders_created"
	StateExtractionStarted   RunState = "extraction_started"
	StateExtractionInProgress RunState = "extraction_in_progress"
	StateRetrying            RunState = "retrying"
	StateValidationStarted   RunState = "validation_started"
	StateValidationCompleted RunState = "validation_completed"
	StateCompleted           RunState = "completed"
	StateFailed              RunState = "failed"
)

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ValidationStatus classifies a result after validation.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationIssues    ValidationStatus = "issues"
	ValidationFailed    ValidationStatus = "failed"
)

// ExtractionResult is the outcome of one extraction attempt. The scheduler
// creates it, the validator mutates it exactly once, and it is immutable
// afterwards.
type ExtractionResult struct {
	ProductName      string
	Success          bool
	Payload          Payload
	ErrorMessage     string
	Timestamp        time.Time
	FolderPath       string
	ExtractionTime   time.Duration
	RetryCount       int
	ConfidenceScore  *float64
	ValidationStatus ValidationStatus
}

// RunMetrics aggregates counters across one run. Mutated incrementally by
// the scheduler as results arrive and finalized once at run end.
type RunMetrics struct {
	TotalProducts         int
	SuccessfulExtractions int
	FailedExtractions     int
	RetriedExtractions    int
	TotalExtractionTime   time.Duration
	AverageExtractionTime time.Duration
	StartTime             time.Time
	EndTime               time.Time
	SuccessRate           float64
}

// ExtractionSummary is the headline block of the run summary artifact.
// Rates and timings are pre-formatted strings, matching the layout consumers
// of earlier runs already parse.
type ExtractionSummary struct {
	TotalProducts         int    `json:"total_products"`
	SuccessfulExtractions int    `json:"successful_extractions"`
	FailedExtractions     int    `json:"failed_extractions"`
	RetriedExtractions    int    `json:"retried_extractions"`
	SuccessRate           string `json:"success_rate"`
	AverageExtractionTime string `json:"average_extraction_time"`
	StartTime             string `json:"start_time"`
	EndTime               string `json:"end_time"`
}

// ResultRecord is the JSON view of one ExtractionResult inside the run
// summary.
type ResultRecord struct {
	ProductName      string   `json:"product_name"`
	Success          bool     `json:"success"`
	Payload          Payload  `json:"result,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	Timestamp        string   `json:"timestamp"`
	FolderPath       string   `json:"folder_path,omitempty"`
	ExtractionTime   float64  `json:"extraction_time_seconds"`
	RetryCount       int      `json:"retry_count"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	ValidationStatus string   `json:"validation_status"`
}

// PersistenceFailure records a non-fatal artifact write failure surfaced in
// the run summary.
type PersistenceFailure struct {
	Product string `json:"product,omitempty"`
	Path    string `json:"path"`
	Error   string `json:"error"`
}

// RunSummary is the consolidated JSON artifact written at the end of a run.
type RunSummary struct {
	ExtractionSummary   ExtractionSummary    `json:"extraction_summary"`
	DetailedResults     []ResultRecord       `json:"detailed_results"`
	ValidationSummary   map[string]int       `json:"validation_summary"`
	PersistenceFailures []PersistenceFailure `json:"persistence_failures,omitempty"`
}
