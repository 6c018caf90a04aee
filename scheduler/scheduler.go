// Package scheduler drives an extraction run: batching, bounded retries,
// validation, and artifact persistence, tracked through an explicit state
// machine.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/product-extractor/config"
	"github.com/aluiziolira/product-extractor/extract"
	"github.com/aluiziolira/product-extractor/listload"
	"github.com/aluiziolira/product-extractor/models"
	"github.com/aluiziolira/product-extractor/store"
	"github.com/aluiziolira/product-extractor/validate"
)

// Scheduler coordinates one extraction run. All mutable state is owned by
// the goroutine that calls Run; batch workers communicate back over a
// channel and never touch the scheduler directly.
type Scheduler struct {
	cfg       *config.Config
	loader    listload.Loader
	extractor extract.Extractor
	store     store.ArtifactStore
	validator validate.Validator

	// Metrics is the Prometheus bundle for this run. Exposed so the caller
	// can serve its registry.
	Metrics *Metrics

	runID string
	state models.RunState
	agg   *Aggregator

	results      []models.ExtractionResult
	index        map[string]int
	retryQueue   []models.ExtractionAttempt
	persistFails []models.PersistenceFailure
	folders      map[string]string
}

// outcome pairs a finished attempt with its result so the coordinator can
// decide whether to re-enqueue.
type outcome struct {
	attempt models.ExtractionAttempt
	result  models.ExtractionResult
}

// New builds a Scheduler from its collaborators. The config must already
// validate.
func New(cfg *config.Config, loader listload.Loader, extractor extract.Extractor, st store.ArtifactStore) (*Scheduler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if loader == nil {
		return nil, fmt.Errorf("product list loader is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if st == nil {
		return nil, fmt.Errorf("artifact store is required")
	}

	return &Scheduler{
		cfg:       cfg,
		loader:    loader,
		extractor: extractor,
		store:     st,
		validator: validate.Validator{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			SlowExtractionLimit: cfg.SlowExtractionLimit,
		},
		Metrics: NewMetrics(),
		runID:   uuid.NewString(),
		state:   models.StateInitialized,
		agg:     NewAggregator(),
		index:   make(map[string]int),
		folders: make(map[string]string),
	}, nil
}

// RunID returns the unique identifier of this run.
func (s *Scheduler) RunID() string {
	return s.runID
}

// State returns the current run state. Stable once Run has returned.
func (s *Scheduler) State() models.RunState {
	return s.state
}

// Results returns the recorded results. Stable once Run has returned.
func (s *Scheduler) Results() []models.ExtractionResult {
	return s.results
}

// Run executes the full pipeline: load list, create containers, extract in
// batches, retry failures, validate, and persist the run summary. A
// cancelled ctx stops scheduling new work; a summary covering the work done
// so far is still written.
func (s *Scheduler) Run(ctx context.Context) (*models.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("starting extraction run",
		slog.String("run_id", s.runID),
		slog.String("backend", s.cfg.Backend),
		slog.Int("max_parallel", s.cfg.MaxParallelExtractions),
		slog.Int("max_retries", s.cfg.MaxRetries),
	)

	products, err := s.loader.Load(ctx)
	if err != nil {
		return nil, s.fail("product list load", err)
	}
	if len(products) == 0 {
		return nil, s.fail("product list load", ErrNoProducts)
	}
	s.agg.Start(len(products))
	s.transition(models.StateProductListLoaded)
	slog.Info("product list loaded", slog.Int("products", len(products)))

	s.prepareContainers(ctx, products)
	s.transition(models.StateFoldersCreated)

	attempts := make([]models.ExtractionAttempt, len(products))
	for i, p := range products {
		attempts[i] = models.ExtractionAttempt{Descriptor: p}
	}
	s.transition(models.StateExtractionStarted)

	batchSize := s.cfg.MaxParallelExtractions
	for start := 0; start < len(attempts); start += batchSize {
		if ctx.Err() != nil {
			slog.Warn("stop requested, skipping remaining products",
				slog.Int("remaining", len(attempts)-start),
			)
			break
		}

		end := min(start+batchSize, len(attempts))
		s.transition(models.StateExtractionInProgress)
		s.runBatch(ctx, attempts[start:end])
		s.Metrics.IncBatches()

		if end < len(attempts) {
			s.sleep(ctx, time.Duration(s.cfg.DelayBetweenProducts)*time.Second)
		}
	}

	if len(s.retryQueue) > 0 && ctx.Err() == nil {
		s.transition(models.StateRetrying)
		s.drainRetries(ctx)
	}

	s.transition(models.StateValidationStarted)
	for i := range s.results {
		s.results[i] = s.validator.Validate(s.results[i])
		s.Metrics.IncValidation(string(s.results[i].ValidationStatus))
	}
	s.transition(models.StateValidationCompleted)

	metrics := s.agg.Finalize()
	summary := s.buildSummary(metrics)
	s.persistSummary(summary, metrics)
	s.transition(models.StateCompleted)

	slog.Info("extraction run completed",
		slog.String("run_id", s.runID),
		slog.Int("succeeded", metrics.SuccessfulExtractions),
		slog.Int("failed", metrics.FailedExtractions),
		slog.Int("retried", metrics.RetriedExtractions),
		slog.Duration("elapsed", metrics.EndTime.Sub(metrics.StartTime)),
	)
	return summary, nil
}

// fail marks the run failed and wraps the cause.
func (s *Scheduler) fail(stage string, err error) error {
	s.transition(models.StateFailed)
	wrapped := &SetupError{Stage: stage, Err: err}
	slog.Error("extraction run failed",
		slog.String("run_id", s.runID),
		slog.String("stage", stage),
		slog.Any("error", err),
	)
	return wrapped
}

func (s *Scheduler) transition(next models.RunState) {
	if s.state == next {
		return
	}
	slog.Debug("run state transition",
		slog.String("run_id", s.runID),
		slog.String("from", string(s.state)),
		slog.String("to", string(next)),
	)
	s.state = next
}

// prepareContainers resolves each product's storage folder and creates it.
// Failures here are persistence failures, not fatal: the extraction still
// runs and the summary records what could not be written.
func (s *Scheduler) prepareContainers(ctx context.Context, products []models.ProductDescriptor) {
	owners := make(map[string]string, len(products))
	for _, p := range products {
		folder := path.Join(s.cfg.RootFolder, models.SanitizeName(p.Name))
		if prev, ok := owners[folder]; ok && prev != p.Name {
			slog.Warn("sanitized folder collision, last writer wins",
				slog.String("folder", folder),
				slog.String("previous", prev),
				slog.String("product", p.Name),
			)
		}
		owners[folder] = p.Name
		s.folders[p.Name] = folder

		if err := s.store.EnsureContainer(ctx, folder); err != nil {
			s.notePersistFailure(p.Name, folder, err)
		}
	}
}

// runBatch launches every attempt in the slice concurrently and blocks until
// all have reported back. Outcomes are folded in on the coordinator
// goroutine as they arrive.
func (s *Scheduler) runBatch(ctx context.Context, batch []models.ExtractionAttempt) {
	outcomes := make(chan outcome, len(batch))
	taskCtx := s.taskContext(ctx)

	var wg sync.WaitGroup
	for _, att := range batch {
		wg.Add(1)
		go func(att models.ExtractionAttempt) {
			defer wg.Done()
			outcomes <- s.attempt(taskCtx, att)
		}(att)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		s.record(out)
	}
}

// taskContext picks the context handed to extraction workers. Under the
// drain policy in-flight tasks finish even if the run context is cancelled;
// under abort the cancellation propagates into them.
func (s *Scheduler) taskContext(ctx context.Context) context.Context {
	if s.cfg.CancelPolicy == config.CancelAbort {
		return ctx
	}
	return context.Background()
}

// attempt performs a single extraction. A panicking extractor is contained
// here and converted into a failed result so one bad product cannot take
// down the run.
func (s *Scheduler) attempt(ctx context.Context, att models.ExtractionAttempt) (out outcome) {
	out.attempt = att
	result := models.ExtractionResult{
		ProductName:      att.Descriptor.Name,
		Timestamp:        time.Now(),
		FolderPath:       s.folders[att.Descriptor.Name],
		RetryCount:       att.RetryCount,
		ValidationStatus: models.ValidationPending,
	}
	out.result = result

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("extractor panic: %v", r)
			out.result = result
		}
	}()

	payload, elapsed, err := s.extractor.Extract(ctx, att.Descriptor)
	result.ExtractionTime = elapsed

	switch {
	case err != nil:
		result.ErrorMessage = err.Error()
	case len(payload) == 0:
		result.ErrorMessage = "no product details found"
	default:
		result.Success = true
		result.Payload = payload
		score := validate.ConfidenceScore(payload)
		result.ConfidenceScore = &score
	}

	out.result = result
	return out
}

// record folds one outcome into run state: replaces the prior result on a
// retry, updates counters, persists details for successes, and re-enqueues
// failures that still have retry budget.
func (s *Scheduler) record(out outcome) {
	result := out.result

	if i, ok := s.index[result.ProductName]; ok {
		s.agg.Replace(s.results[i], result)
		s.results[i] = result
	} else {
		s.index[result.ProductName] = len(s.results)
		s.results = append(s.results, result)
		s.agg.Record(result)
	}

	if result.Success {
		s.Metrics.IncProduct("success")
		s.Metrics.ObserveExtraction(result.ExtractionTime)
		s.persistDetails(result)
		slog.Info("product extracted",
			slog.String("product", result.ProductName),
			slog.Duration("took", result.ExtractionTime),
			slog.Float64("confidence", *result.ConfidenceScore),
		)
		return
	}

	s.Metrics.IncProduct("failure")
	slog.Warn("product extraction failed",
		slog.String("product", result.ProductName),
		slog.Int("retry_count", result.RetryCount),
		slog.String("error", result.ErrorMessage),
	)

	att := out.attempt
	if att.RetryCount < s.cfg.MaxRetries {
		att.RetryCount++
		att.LastAttempt = time.Now()
		s.retryQueue = append(s.retryQueue, att)
	}
}

// drainRetries executes the retry queue sequentially in FIFO order. Failed
// retries with remaining budget are re-enqueued by record, so the loop runs
// until every product has either succeeded or exhausted its retries.
func (s *Scheduler) drainRetries(ctx context.Context) {
	for len(s.retryQueue) > 0 {
		if ctx.Err() != nil {
			slog.Warn("stop requested, abandoning retry queue",
				slog.Int("remaining", len(s.retryQueue)),
			)
			return
		}

		att := s.retryQueue[0]
		s.retryQueue = s.retryQueue[1:]

		s.agg.RecordRetry()
		s.Metrics.IncRetries()
		slog.Info("retrying product",
			slog.String("product", att.Descriptor.Name),
			slog.Int("attempt", att.RetryCount),
		)

		s.record(s.attempt(s.taskContext(ctx), att))
	}
}

// persistDetails writes the per-product details.json. Failures are recorded
// and the run continues; artifact writes use a background context so a
// drained run still lands its partial output.
func (s *Scheduler) persistDetails(result models.ExtractionResult) {
	key := path.Join(result.FolderPath, "details.json")

	data, err := json.MarshalIndent(result.Payload, "", "  ")
	if err != nil {
		s.notePersistFailure(result.ProductName, key, err)
		return
	}
	if err := s.store.PutObject(context.Background(), key, data, store.ContentTypeJSON); err != nil {
		s.notePersistFailure(result.ProductName, key, err)
	}
}

func (s *Scheduler) notePersistFailure(product, key string, err error) {
	s.persistFails = append(s.persistFails, models.PersistenceFailure{
		Product: product,
		Path:    key,
		Error:   err.Error(),
	})
	s.Metrics.IncPersistenceFailure()
	slog.Error("artifact write failed",
		slog.String("product", product),
		slog.String("path", key),
		slog.Any("error", err),
	)
}

// sleep waits for the inter-batch delay, returning early on cancellation.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
