package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/product-extractor/config"
	"github.com/aluiziolira/product-extractor/models"
	"github.com/aluiziolira/product-extractor/store"
)

type staticLoader struct {
	products []models.ProductDescriptor
	err      error
}

func (l staticLoader) Load(context.Context) ([]models.ProductDescriptor, error) {
	return l.products, l.err
}

// memStore is an in-memory ArtifactStore with failure injection keyed on
// path substrings.
type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	containers map[string]bool
	failOn     []string
}

func newMemStore() *memStore {
	return &memStore{
		objects:    make(map[string][]byte),
		containers: make(map[string]bool),
	}
}

func (m *memStore) failWhenContains(sub string) {
	m.failOn = append(m.failOn, sub)
}

func (m *memStore) shouldFail(path string) bool {
	for _, sub := range m.failOn {
		if strings.Contains(path, sub) {
			return true
		}
	}
	return false
}

func (m *memStore) PutObject(_ context.Context, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(path) {
		return fmt.Errorf("injected write failure for %s", path)
	}
	m.objects[path] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) PutTabular(_ context.Context, path string, table *store.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(path) {
		return fmt.Errorf("injected write failure for %s", path)
	}
	m.objects[path] = []byte(fmt.Sprintf("table sheet=%s rows=%d", table.Sheet, len(table.Rows)))
	return nil
}

func (m *memStore) EnsureContainer(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(path) {
		return fmt.Errorf("injected container failure for %s", path)
	}
	m.containers[path] = true
	return nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// find returns the first stored object whose key starts with prefix.
func (m *memStore) find(prefix string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			return v, true
		}
	}
	return nil, false
}

// fakeExtractor tracks call counts and in-flight concurrency, and fails the
// first failures[name] calls for each product.
type fakeExtractor struct {
	mu          sync.Mutex
	calls       map[string]int
	failures    map[string]int
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		delay:    2 * time.Millisecond,
	}
}

func (f *fakeExtractor) Extract(_ context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error) {
	f.mu.Lock()
	f.calls[d.Name]++
	call := f.calls[d.Name]
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	fail := call <= f.failures[d.Name]
	f.mu.Unlock()

	if fail {
		return nil, f.delay, fmt.Errorf("simulated failure for %s (call %d)", d.Name, call)
	}
	return models.Payload{
		models.KeyTitle:       d.Name,
		models.KeySKU:         "SKU-" + d.Name,
		models.KeyBrand:       "Acme",
		models.KeySupplier:    "Acme Supply",
		models.KeyDescription: "Industrial " + d.Name,
		models.KeyAttributes:  map[string]any{"weight": "2kg"},
	}, f.delay, nil
}

func (f *fakeExtractor) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeExtractor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DelayBetweenProducts = 0
	cfg.MaxParallelExtractions = 3
	cfg.MaxRetries = 2
	return cfg
}

func descriptors(names ...string) []models.ProductDescriptor {
	products := make([]models.ProductDescriptor, len(names))
	for i, n := range names {
		products[i] = models.ProductDescriptor{Name: n, Index: i}
	}
	return products
}

func TestRunBatchesWithBoundedParallelism(t *testing.T) {
	names := []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7"}
	extractor := newFakeExtractor()
	st := newMemStore()

	s, err := New(testConfig(), staticLoader{products: descriptors(names...)}, extractor, st)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.State() != models.StateCompleted {
		t.Fatalf("state=%s, want %s", s.State(), models.StateCompleted)
	}
	if summary.ExtractionSummary.TotalProducts != 7 || summary.ExtractionSummary.SuccessfulExtractions != 7 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}
	if summary.ExtractionSummary.SuccessRate != "100.0%" {
		t.Fatalf("success rate=%q, want 100.0%%", summary.ExtractionSummary.SuccessRate)
	}

	if extractor.maxInFlight > 3 {
		t.Fatalf("max in-flight=%d, want <= 3", extractor.maxInFlight)
	}
	if got := testutil.ToFloat64(s.Metrics.BatchesTotal); got != 3 {
		t.Fatalf("batches=%v, want 3 for 7 products at parallelism 3", got)
	}

	// One details.json per product plus the two run artifacts.
	for _, n := range names {
		data, ok := st.find("data/" + n + "/details.json")
		if !ok {
			t.Fatalf("details.json missing for %s", n)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("details.json for %s not valid JSON: %v", n, err)
		}
		if payload["title"] != n {
			t.Fatalf("details title=%v, want %s", payload["title"], n)
		}
	}
	if _, ok := st.find("results_"); !ok {
		t.Fatalf("results spreadsheet missing")
	}
	if _, ok := st.find("summary_"); !ok {
		t.Fatalf("summary json missing")
	}

	for _, r := range summary.DetailedResults {
		if r.ValidationStatus == string(models.ValidationPending) {
			t.Fatalf("result for %s left pending", r.ProductName)
		}
	}
	if summary.ValidationSummary[string(models.ValidationValidated)] != 7 {
		t.Fatalf("validation summary=%v, want 7 validated", summary.ValidationSummary)
	}
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.failures["Flaky"] = 2

	s, err := New(testConfig(), staticLoader{products: descriptors("Flaky")}, extractor, newMemStore())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := extractor.callCount("Flaky"); got != 3 {
		t.Fatalf("calls=%d, want 3 (initial + 2 retries)", got)
	}
	if summary.ExtractionSummary.SuccessfulExtractions != 1 || summary.ExtractionSummary.RetriedExtractions != 2 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}

	result := summary.DetailedResults[0]
	if !result.Success || result.RetryCount != 2 {
		t.Fatalf("result success=%v retry_count=%d, want success with retry_count 2", result.Success, result.RetryCount)
	}
	if got := testutil.ToFloat64(s.Metrics.RetriesTotal); got != 2 {
		t.Fatalf("retries metric=%v, want 2", got)
	}
}

func TestRunRetryBudgetExhausted(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.failures["Broken"] = 10

	s, err := New(testConfig(), staticLoader{products: descriptors("Broken")}, extractor, newMemStore())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := extractor.callCount("Broken"); got != 3 {
		t.Fatalf("calls=%d, want 3 (initial + MaxRetries)", got)
	}
	if summary.ExtractionSummary.FailedExtractions != 1 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}

	result := summary.DetailedResults[0]
	if result.Success || result.RetryCount != 2 {
		t.Fatalf("result success=%v retry_count=%d, want failure with retry_count 2", result.Success, result.RetryCount)
	}
	if result.ValidationStatus != string(models.ValidationFailed) {
		t.Fatalf("validation status=%q, want %q", result.ValidationStatus, models.ValidationFailed)
	}
	if s.State() != models.StateCompleted {
		t.Fatalf("state=%s, failed products should not fail the run", s.State())
	}
}

func TestRunPanickingExtractorIsContained(t *testing.T) {
	extractor := newFakeExtractor()
	panicking := fakeExtractorFunc(func(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error) {
		if d.Name == "Bad" {
			panic("boom")
		}
		return extractor.Extract(ctx, d)
	})

	cfg := testConfig()
	cfg.MaxRetries = 0
	s, err := New(cfg, staticLoader{products: descriptors("Bad", "Good")}, panicking, newMemStore())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.ExtractionSummary.SuccessfulExtractions != 1 || summary.ExtractionSummary.FailedExtractions != 1 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}
	for _, r := range summary.DetailedResults {
		if r.ProductName == "Bad" {
			if r.Success || !strings.Contains(r.ErrorMessage, "panic") {
				t.Fatalf("panic result not converted to failure: %+v", r)
			}
		}
	}
}

type fakeExtractorFunc func(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error)

func (f fakeExtractorFunc) Extract(ctx context.Context, d models.ProductDescriptor) (models.Payload, time.Duration, error) {
	return f(ctx, d)
}

func TestRunPersistenceFailureIsNotFatal(t *testing.T) {
	st := newMemStore()
	st.failWhenContains("Fragile/details.json")

	s, err := New(testConfig(), staticLoader{products: descriptors("Fragile", "Solid")}, newFakeExtractor(), st)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.State() != models.StateCompleted {
		t.Fatalf("state=%s, persistence failure should not fail the run", s.State())
	}
	if len(summary.PersistenceFailures) != 1 {
		t.Fatalf("persistence failures=%v, want exactly one", summary.PersistenceFailures)
	}
	pf := summary.PersistenceFailures[0]
	if pf.Product != "Fragile" || !strings.Contains(pf.Path, "details.json") {
		t.Fatalf("unexpected persistence failure: %+v", pf)
	}
	if got := testutil.ToFloat64(s.Metrics.PersistenceFailuresTotal); got != 1 {
		t.Fatalf("persistence failure metric=%v, want 1", got)
	}
	// The extraction itself still counts as a success.
	if summary.ExtractionSummary.SuccessfulExtractions != 2 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}
}

func TestRunLoaderErrorFailsRun(t *testing.T) {
	s, err := New(testConfig(), staticLoader{err: fmt.Errorf("list unavailable")}, newFakeExtractor(), newMemStore())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error for failing loader")
	}
	var setupErr *SetupError
	if !errors.As(err, &setupErr) || setupErr.Stage != "product list load" {
		t.Fatalf("expected SetupError for list load, got %v", err)
	}
	if summary != nil {
		t.Fatalf("summary should be nil on setup failure")
	}
	if s.State() != models.StateFailed {
		t.Fatalf("state=%s, want %s", s.State(), models.StateFailed)
	}
}

func TestRunEmptyListFailsRun(t *testing.T) {
	s, err := New(testConfig(), staticLoader{}, newFakeExtractor(), newMemStore())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	_, err = s.Run(context.Background())
	if !errors.Is(err, ErrNoProducts) {
		t.Fatalf("expected ErrNoProducts, got %v", err)
	}
	if s.State() != models.StateFailed {
		t.Fatalf("state=%s, want %s", s.State(), models.StateFailed)
	}
}

func TestRunCancelledContextStillWritesSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := newFakeExtractor()
	st := newMemStore()
	s, err := New(testConfig(), staticLoader{products: descriptors("P1", "P2", "P3", "P4")}, extractor, st)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	summary, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := extractor.totalCalls(); got != 0 {
		t.Fatalf("extractor calls=%d, want 0 after pre-cancelled context", got)
	}
	if s.State() != models.StateCompleted {
		t.Fatalf("state=%s, a cancelled run still completes with a summary", s.State())
	}
	if summary.ExtractionSummary.TotalProducts != 4 || summary.ExtractionSummary.SuccessfulExtractions != 0 {
		t.Fatalf("unexpected totals: %+v", summary.ExtractionSummary)
	}
	if _, ok := st.find("summary_"); !ok {
		t.Fatalf("summary artifact missing after cancellation")
	}
}

func TestNewRejectsBadInputs(t *testing.T) {
	cfg := testConfig()
	loader := staticLoader{products: descriptors("P")}
	extractor := newFakeExtractor()
	st := newMemStore()

	if _, err := New(nil, loader, extractor, st); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := New(cfg, nil, extractor, st); err == nil {
		t.Fatalf("expected error for nil loader")
	}
	if _, err := New(cfg, loader, nil, st); err == nil {
		t.Fatalf("expected error for nil extractor")
	}
	if _, err := New(cfg, loader, extractor, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}

	bad := testConfig()
	bad.MaxParallelExtractions = 0
	if _, err := New(bad, loader, extractor, st); err == nil {
		t.Fatalf("expected error for invalid config")
	}
}
