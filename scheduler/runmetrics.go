package scheduler

import (
	"time"

	"github.com/aluiziolira/product-extractor/models"
)

// Aggregator accumulates per-run counters. It is owned by the scheduler's
// coordinator goroutine and needs no locking: results are recorded one at a
// time as batches drain.
type Aggregator struct {
	total     int
	succeeded int
	failed    int
	retried   int

	totalTime time.Duration
	timed     int

	startTime time.Time
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Start stamps the run start time.
func (a *Aggregator) Start(total int) {
	a.startTime = time.Now()
	a.total = total
}

// Record folds one result into the counters.
func (a *Aggregator) Record(r models.ExtractionResult) {
	if r.Success {
		a.succeeded++
		if r.ExtractionTime > 0 {
			a.totalTime += r.ExtractionTime
			a.timed++
		}
		return
	}
	a.failed++
}

// Replace swaps a previously recorded result for its retry outcome, keeping
// every product counted exactly once.
func (a *Aggregator) Replace(old, current models.ExtractionResult) {
	if old.Success {
		a.succeeded--
		if old.ExtractionTime > 0 {
			a.totalTime -= old.ExtractionTime
			a.timed--
		}
	} else {
		a.failed--
	}
	a.Record(current)
}

// RecordRetry counts one executed retry attempt.
func (a *Aggregator) RecordRetry() {
	a.retried++
}

// Finalize stamps the end time and derives the average and success rate.
func (a *Aggregator) Finalize() models.RunMetrics {
	m := models.RunMetrics{
		TotalProducts:         a.total,
		SuccessfulExtractions: a.succeeded,
		FailedExtractions:     a.failed,
		RetriedExtractions:    a.retried,
		TotalExtractionTime:   a.totalTime,
		StartTime:             a.startTime,
		EndTime:               time.Now(),
	}
	if a.timed > 0 {
		m.AverageExtractionTime = a.totalTime / time.Duration(a.timed)
	}
	if a.total > 0 {
		m.SuccessRate = float64(a.succeeded) / float64(a.total) * 100
	}
	return m
}
