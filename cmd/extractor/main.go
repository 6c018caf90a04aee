package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/product-extractor/config"
	"github.com/aluiziolira/product-extractor/extract"
	"github.com/aluiziolira/product-extractor/listload"
	"github.com/aluiziolira/product-extractor/models"
	"github.com/aluiziolira/product-extractor/scheduler"
	"github.com/aluiziolira/product-extractor/store"
)

func main() {
	configFile := flag.String("config", "", "YAML config file (default: EXTRACTOR_CONFIG_FILE)")
	flagBackend := flag.String("backend", "", "Storage backend: local or gcs")
	flagBucket := flag.String("bucket", "", "GCS bucket name")
	flagLocalDir := flag.String("local-dir", "", "Local output directory")
	flagList := flag.String("list", "", "Product list JSON file")
	flagCatalog := flag.String("catalog", "", "Catalog URL to scrape for products")
	flagParallel := flag.Int("parallel", 0, "Concurrent extractions per batch")
	flagRetries := flag.Int("max-retries", -1, "Maximum retry attempts per product")
	flagDelay := flag.Int("delay", -1, "Delay between batches (seconds)")
	flagMetricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flagVerbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Only flags given on the command line override the loaded config.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *flagBackend
		case "bucket":
			cfg.BucketName = *flagBucket
		case "local-dir":
			cfg.LocalDir = *flagLocalDir
		case "list":
			cfg.ProductListFile = *flagList
		case "catalog":
			cfg.CatalogURL = *flagCatalog
		case "parallel":
			cfg.MaxParallelExtractions = *flagParallel
		case "max-retries":
			cfg.MaxRetries = *flagRetries
		case "delay":
			cfg.DelayBetweenProducts = *flagDelay
		case "metrics-addr":
			cfg.MetricsAddr = *flagMetricsAddr
		case "v":
			cfg.Verbose = *flagVerbose
		}
	})

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight extractions to finish")
	}()

	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("initialising artifact store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	loader, err := buildLoader(cfg)
	if err != nil {
		slog.Error("initialising product list loader", slog.Any("error", err))
		os.Exit(1)
	}

	extractor, err := extract.NewRodExtractor(cfg)
	if err != nil {
		slog.Error("launching browser", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := extractor.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	s, err := scheduler.New(cfg, loader, extractor, st)
	if err != nil {
		slog.Error("initialising scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	summary, err := s.Run(ctx)
	if err != nil {
		slog.Error("extraction run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(summary, time.Since(startTime), cfg)
}

// buildStore selects the artifact store backend. The returned cleanup closes
// the GCS client when one was opened.
func buildStore(ctx context.Context, cfg *config.Config) (store.ArtifactStore, func(), error) {
	switch cfg.Backend {
	case config.BackendLocal:
		st, err := store.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		st, err := store.NewGCSStore(ctx, client, cfg.BucketName, cfg.GCSPrefix)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				slog.Error("close gcs client", slog.Any("error", err))
			}
		}
		return st, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// buildLoader prefers a product list file over a catalog URL.
func buildLoader(cfg *config.Config) (listload.Loader, error) {
	if cfg.ProductListFile != "" {
		return listload.FileLoader{Path: cfg.ProductListFile}, nil
	}
	if cfg.CatalogURL != "" {
		return listload.NewCatalogLoader(cfg.CatalogURL, cfg.UserAgent, cfg.ExtractionTimeout)
	}
	return nil, fmt.Errorf("either a product list file or a catalog url is required")
}

func printSummary(summary *models.RunSummary, duration time.Duration, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Extraction complete")
	fmt.Printf("  Products:      %d\n", summary.ExtractionSummary.TotalProducts)
	fmt.Printf("  Succeeded:     %d\n", summary.ExtractionSummary.SuccessfulExtractions)
	fmt.Printf("  Failed:        %d\n", summary.ExtractionSummary.FailedExtractions)
	fmt.Printf("  Retries:       %d\n", summary.ExtractionSummary.RetriedExtractions)
	fmt.Printf("  Success rate:  %s\n", summary.ExtractionSummary.SuccessRate)
	fmt.Printf("  Avg time:      %s\n", summary.ExtractionSummary.AverageExtractionTime)
	if len(summary.ValidationSummary) > 0 {
		fmt.Printf("  Validation:    %v\n", summary.ValidationSummary)
	}
	if len(summary.PersistenceFailures) > 0 {
		fmt.Printf("  Write errors:  %d\n", len(summary.PersistenceFailures))
	}
	fmt.Printf("  Duration:      %v\n", duration)
	if cfg.Backend == config.BackendGCS {
		fmt.Printf("  Output:        gs://%s/%s\n", cfg.BucketName, cfg.GCSPrefix)
	} else {
		fmt.Printf("  Output:        %s\n", cfg.LocalDir)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
