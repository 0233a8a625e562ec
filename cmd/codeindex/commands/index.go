package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrel-labs/codeindex/internal/config"
	"github.com/kestrel-labs/codeindex/internal/embedder"
	"github.com/kestrel-labs/codeindex/internal/observability"
	"github.com/kestrel-labs/codeindex/internal/textparser"
	"github.com/kestrel-labs/codeindex/internal/vectordb"
	"github.com/kestrel-labs/codeindex/pkg/checkpoint"
	"github.com/kestrel-labs/codeindex/pkg/pipeline"
	"github.com/kestrel-labs/codeindex/pkg/progress"
	"github.com/kestrel-labs/codeindex/pkg/version"
)

const indexArgCount = 1

// NewIndexCommand builds the `index` subcommand: it drives one pipeline run
// against a project and reports the resulting indexing.PipelineResult.
func NewIndexCommand(configPath *string) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "index <project-path>",
		Short: "Run the indexing pipeline against a project",
		Args:  cobra.ExactArgs(indexArgCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), *configPath, args[0], collection)
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "vector database collection (overrides config)")

	return cmd
}

func runIndex(ctx context.Context, configPath, projectPath, collectionOverride string) (err error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	collection := cfg.VectorDB.Collection
	if collectionOverride != "" {
		collection = collectionOverride
	}

	if collection == "" {
		return argError("a collection name is required (pass --collection or set vector_db.collection)")
	}

	obsCfg := buildObservabilityConfig(cfg)

	providers, obsErr := observability.Init(obsCfg)
	if obsErr != nil {
		return fmt.Errorf("init observability: %w", obsErr)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(obsCfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()

		if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "observability shutdown: %v\n", shutdownErr)
		}
	}()

	logger := providers.Logger

	redMetrics, redErr := observability.NewREDMetrics(providers.Meter)
	if redErr != nil {
		return fmt.Errorf("create request metrics: %w", redErr)
	}

	runStart := time.Now()
	doneInflight := redMetrics.TrackInflight(ctx, "index")

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}

		redMetrics.RecordRequest(ctx, "index", status, time.Since(runStart))
		doneInflight()
	}()

	if diagAddr := cfg.Observability.DiagnosticsAddr; diagAddr != "" {
		diagServer, diagErr := observability.NewDiagnosticsServer(diagAddr, providers.Meter, providers.Tracer, logger)
		if diagErr != nil {
			return fmt.Errorf("start diagnostics server: %w", diagErr)
		}
		defer diagServer.Close()

		logger.Info("diagnostics server listening", "addr", diagServer.Addr())
	}

	connectTimeout, parseErr := time.ParseDuration(cfg.VectorDB.ConnectTimeout)
	if parseErr != nil {
		connectTimeout = vectordb.DefaultConnectTimeout
	}

	store, dialErr := vectordb.Dial(ctx, vectordb.Config{
		Host:           cfg.VectorDB.Host,
		Port:           cfg.VectorDB.Port,
		APIKey:         cfg.VectorDB.APIKey,
		UseTLS:         cfg.VectorDB.UseTLS,
		ConnectTimeout: connectTimeout,
		Logger:         logger,
	})
	if dialErr != nil {
		return fmt.Errorf("connect to vector database: %w", dialErr)
	}
	defer store.Close()

	embed := embedder.New(embedder.Config{
		APIKey:  cfg.Embedder.APIKey,
		BaseURL: cfg.Embedder.BaseURL,
		Model:   cfg.Embedder.ResolvedModel(),
		Logger:  logger,
	})

	discoverer := pipeline.Discoverer{Root: projectPath}
	parser := textparser.Parser{Root: projectPath}
	checkpoints := checkpoint.NewManager(checkpoint.DefaultDir(projectPath))
	reporter := progress.New(logger)

	pl, buildErr := pipeline.New(
		projectPath,
		cfg.Pipeline,
		discoverer,
		parser,
		embed,
		store,
		checkpoints,
		reporter,
		pipeline.WithLogger(logger),
		pipeline.WithTracer(providers.Tracer),
	)
	if buildErr != nil {
		return fmt.Errorf("build pipeline: %w", buildErr)
	}

	analysisMetrics, metricsErr := observability.NewAnalysisMetrics(providers.Meter)
	if metricsErr != nil {
		return fmt.Errorf("create analysis metrics: %w", metricsErr)
	}

	if cacheErr := observability.RegisterCacheMetrics(providers.Meter,
		observability.NamedCacheProvider{Name: "fingerprint", Provider: reporter},
	); cacheErr != nil {
		return fmt.Errorf("register cache metrics: %w", cacheErr)
	}

	result, runErr := pl.Run(ctx, collection)
	fmt.Fprintf(os.Stdout, "%s\nprocessed=%d skipped=%d failed=%d resumable=%v\n",
		reporter.PerformanceReport().Human(), result.FilesProcessed, result.FilesSkipped,
		result.FilesFailed, result.Resumable())

	analysisMetrics.RecordRun(ctx, observability.AnalysisStats{
		FilesProcessed: int64(result.FilesProcessed),
		FilesSkipped:   int64(result.FilesSkipped),
		FilesFailed:    int64(result.FilesFailed),
		Entities:       int64(result.EntityCount),
		Relations:      int64(result.RelationCount),
		Chunks:         int64(result.ChunkCount),
		CacheHits:      int64(result.CacheHits),
		CacheMisses:    int64(result.CacheMisses),
	})

	if runErr != nil {
		return fmt.Errorf("run pipeline: %w", runErr)
	}

	if !result.Success {
		return fmt.Errorf("indexing run finished with failures: %d failed, %d errors", result.FilesFailed, len(result.Errors))
	}

	return nil
}

// buildObservabilityConfig derives the observability.Init input from the
// loaded Config and the binary's version metadata.
func buildObservabilityConfig(cfg *config.Config) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.DebugTrace = cfg.Observability.DebugTrace
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogJSON = cfg.Logging.JSON

	if level, ok := parseLevel(cfg.Logging.Level); ok {
		obsCfg.LogLevel = level
	}

	return obsCfg
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
