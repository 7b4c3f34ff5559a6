package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/internal/artifactory"
	"github.com/arcwatch/attribution-hub/internal/cache"
	"github.com/arcwatch/attribution-hub/internal/catalog"
	"github.com/arcwatch/attribution-hub/internal/config"
	"github.com/arcwatch/attribution-hub/internal/log"
	"github.com/arcwatch/attribution-hub/internal/metrics"
	"github.com/arcwatch/attribution-hub/internal/pprof"
	"github.com/arcwatch/attribution-hub/pkg/artifact"
	"github.com/arcwatch/attribution-hub/pkg/correlate"
	"github.com/arcwatch/attribution-hub/pkg/report"
	"github.com/arcwatch/attribution-hub/pkg/semver"
	"github.com/arcwatch/attribution-hub/pkg/types"
	"github.com/arcwatch/attribution-hub/pkg/version"
)

// metricsNamespace is the namespace all run metrics register under.
const metricsNamespace = "attribution_hub"

// errFlagRetrieval is the error message for when a flag cannot be retrieved.
var errFlagRetrieval = errors.New("error getting flag")

// errRequiredFlagEmpty is the error message for a required flag that is empty.
var errRequiredFlagEmpty = errors.New("is required and cannot be empty")

var outputFormat = report.FormatTable

// catalogFetcher is the repository catalog surface the correlate command
// consumes.
type catalogFetcher interface {
	FetchRepositories(ctx context.Context, scmType, orgID string) ([]*correlate.Repository, error)
	FetchFindings(ctx context.Context, orgID string) ([]correlate.Finding, error)
}

// buildCorrelator runs the build matching and finding attribution pipeline.
type buildCorrelator interface {
	Run(ctx context.Context, run *correlate.Context, findings []correlate.Finding) error
}

// Execute is the main entry point for the correlator.
func Execute(args []string) {
	rootCmd := newRootCmd()
	rootCmd.Version = fmt.Sprintf(`{"version": "%s", "commit": "%s"}`, version.Version, version.CommitSHA)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetArgs(args) // Set the arguments
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the correlator.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate matches a project's builds to source repositories and attributes vulnerability findings.",
		Long: "Correlate maps opaque build names to the repositories in the catalog, attributes dependency " +
			"vulnerability findings to repositories through cached artifact listings, and reports severity totals per repository.",
		RunE: runCorrelate, // Use RunE instead of Run to handle errors
		PreRunE: func(cmd *cobra.Command, args []string) error {
			requiredFlags := []string{"config", "product"}
			for _, flag := range requiredFlags {
				value, err := cmd.Flags().GetString(flag)
				if err != nil {
					return fmt.Errorf("%w: %s: %w", errFlagRetrieval, flag, err)
				}
				if value == "" {
					return fmt.Errorf("%s %w", flag, errRequiredFlagEmpty)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the product catalog YAML")
	rootCmd.PersistentFlags().StringP("product", "p", "", "Product name to correlate")
	rootCmd.PersistentFlags().StringP("env-file", "e", "", "Optional .env file holding the API tokens")
	rootCmd.PersistentFlags().StringP("cache-dir", "d", "", "Directory for build metadata and artifact listing caches")
	rootCmd.PersistentFlags().StringP("output-file", "f", "", "Output file for results")
	rootCmd.PersistentFlags().VarP(&outputFormat, "output-format", "t", "Output format for results. options: table|csv|json")
	rootCmd.PersistentFlags().StringP("snapshot", "s", "", "Optional path to export the full run snapshot as JSON")
	rootCmd.PersistentFlags().StringP("pprof-addr", "", "", "Optional listen address for the debug pprof and metrics server")
	rootCmd.PersistentFlags().StringP("min-server-version", "", "7.63.0", "Minimum artifact store version required for build correlation")

	return rootCmd
}

// Config is the resolved configuration for one correlate invocation.
type Config struct {
	ConfigPath       string
	Product          string
	EnvFile          string
	CacheDir         string
	OutputFile       string
	SnapshotPath     string
	PprofAddr        string
	MinServerVersion string
}

// getConfigFromFlags gets the configuration from the command line flags.
func getConfigFromFlags(cmd *cobra.Command) (*Config, error) {
	configPath, _ := cmd.Flags().GetString("config")                   //nolint:errcheck
	product, _ := cmd.Flags().GetString("product")                     //nolint:errcheck
	envFile, _ := cmd.Flags().GetString("env-file")                    //nolint:errcheck
	cacheDir, _ := cmd.Flags().GetString("cache-dir")                  //nolint:errcheck
	outputFile, _ := cmd.Flags().GetString("output-file")              //nolint:errcheck
	snapshotPath, _ := cmd.Flags().GetString("snapshot")               //nolint:errcheck
	pprofAddr, _ := cmd.Flags().GetString("pprof-addr")                //nolint:errcheck
	minServerVersion, _ := cmd.Flags().GetString("min-server-version") //nolint:errcheck

	return &Config{
		ConfigPath:       configPath,
		Product:          product,
		EnvFile:          envFile,
		CacheDir:         cacheDir,
		OutputFile:       outputFile,
		SnapshotPath:     snapshotPath,
		PprofAddr:        pprofAddr,
		MinServerVersion: minServerVersion,
	}, nil
}

// runCorrelate wires the real dependencies and runs the correlation.
func runCorrelate(cmd *cobra.Command, _ []string) error {
	ctx := metrics.WithMetrics(context.Background(), metricsNamespace)
	logger := log.NewLogger(ctx)

	cfg, err := getConfigFromFlags(cmd)
	if err != nil {
		return fmt.Errorf("error getting config from flags: %w", err)
	}

	if err := config.LoadDotenv(cfg.EnvFile); err != nil {
		return err
	}

	catalogCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading product catalog: %w", err)
	}
	product, ok := catalogCfg.Product(cfg.Product)
	if !ok {
		return fmt.Errorf("product %q not found in catalog", cfg.Product)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = catalogCfg.CacheDir
	}

	tokens := config.TokensFromEnv()
	if catalogCfg.CatalogURL == "" || tokens.Catalog == "" {
		logger.Info("No repository catalog endpoint or token configured, nothing to correlate",
			zap.String("product", product.Name))
		return nil
	}

	if cfg.PprofAddr != "" {
		collector := metrics.FromContext(ctx, metricsNamespace)
		go func() {
			if err := pprof.StartDebugServer(ctx, cfg.PprofAddr, collector.MetricsHandler()); err != nil {
				logger.Warn("Debug server exited", zap.Error(err))
			}
		}()
	}

	fetcher, err := catalog.NewClient(ctx, catalogCfg.CatalogURL, tokens.Catalog, nil, logger)
	if err != nil {
		return fmt.Errorf("error creating catalog client: %w", err)
	}

	engine, err := buildEngine(ctx, logger, catalogCfg, product, tokens, cfg)
	if err != nil {
		return err
	}

	return runCorrelateWithDeps(ctx, logger, fetcher, engine, product, cfg)
}

// buildEngine assembles the build correlation pipeline when the product and
// environment carry everything it needs. A missing project, missing token, or
// a server below the minimum version disables the subsystem without failing
// the run.
func buildEngine(
	ctx context.Context,
	logger types.Logger,
	catalogCfg *config.Config,
	product *config.Product,
	tokens config.Tokens,
	cfg *Config,
) (buildCorrelator, error) {
	if product.Project == "" {
		logger.Info("Product has no artifact store project configured, skipping build correlation",
			zap.String("product", product.Name))
		return nil, nil
	}
	if catalogCfg.ArtifactoryURL == "" || tokens.Artifactory == "" {
		logger.Info("No artifact store endpoint or token configured, skipping build correlation",
			zap.String("product", product.Name))
		return nil, nil
	}

	client, err := artifactory.NewClient(catalogCfg.ArtifactoryURL, tokens.Artifactory, product.Project, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating artifact store client: %w", err)
	}

	serverVersion, err := client.SystemVersion(ctx)
	if err != nil {
		logger.Warn("Could not determine artifact store version, skipping build correlation", zap.Error(err))
		return nil, nil
	}
	meets, err := semver.MeetsMinimum(serverVersion, cfg.MinServerVersion)
	if err != nil {
		return nil, fmt.Errorf("error comparing server versions: %w", err)
	}
	if !meets {
		logger.Info("Artifact store version below minimum, skipping build correlation",
			zap.String("version", serverVersion),
			zap.String("minimum", cfg.MinServerVersion))
		return nil, nil
	}

	store, err := cache.NewFSStore(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("error creating cache store: %w", err)
	}
	metadataCache, err := correlate.NewMetadataCache(store, client, product.Project, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating metadata cache: %w", err)
	}
	listings, err := artifact.NewManager(store, client, product.Project, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating listing manager: %w", err)
	}
	engine, err := correlate.NewEngine(client, metadataCache, listings, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating engine: %w", err)
	}
	return engine, nil
}

// runCorrelateWithDeps runs the correlation with the provided dependencies.
// A nil engine means the build correlation subsystem was skipped; the report
// then carries the catalog's repositories with zero attribution.
func runCorrelateWithDeps(
	ctx context.Context,
	logger types.Logger,
	fetcher catalogFetcher,
	engine buildCorrelator,
	product *config.Product,
	cfg *Config,
) error {
	if fetcher == nil {
		return fmt.Errorf("fetcher cannot be nil")
	}
	if product == nil {
		return fmt.Errorf("product cannot be nil")
	}
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	orgID := strconv.Itoa(product.OrganizationID)
	repos, err := fetcher.FetchRepositories(ctx, product.SCMType, orgID)
	if err != nil {
		return fmt.Errorf("error fetching repositories: %w", err)
	}
	findings, err := fetcher.FetchFindings(ctx, orgID)
	if err != nil {
		logger.Warn("Could not fetch vulnerability findings, continuing without them", zap.Error(err))
		findings = nil
	}

	run := correlate.NewContext(product.Name, product.Project, repos)

	if engine != nil {
		collector := metrics.FromContext(ctx, metricsNamespace)
		stop, err := collector.MeasureFunctionExecutionTime(ctx, "correlate_run")
		if err != nil {
			return fmt.Errorf("error measuring run duration: %w", err)
		}
		err = engine.Run(ctx, run, findings)
		stop()
		if err != nil {
			return fmt.Errorf("error running attribution: %w", err)
		}
		publishRunMetrics(ctx, run)
	} else {
		logger.Info("Build correlation disabled for this run", zap.String("product", product.Name))
	}

	if cfg.SnapshotPath != "" {
		if err := writeSnapshot(cfg.SnapshotPath, run); err != nil {
			return err
		}
	}

	output := os.Stdout
	if cfg.OutputFile != "" {
		var err error
		output, err = os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
	}

	rows := report.BuildRows(run)
	if err := report.Write(output, outputFormat, rows); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// publishRunMetrics exposes the run counters as gauges.
func publishRunMetrics(ctx context.Context, run *correlate.Context) {
	collector := metrics.FromContext(ctx, metricsNamespace)
	counters := map[string]int{
		"builds_processed":    run.Stats.BuildsProcessed,
		"cache_hits":          run.Stats.CacheHits,
		"api_calls":           run.Stats.APICalls,
		"findings_attributed": run.Stats.FindingsAttributed,
		"findings_dropped":    run.Stats.FindingsDropped,
	}
	for name, value := range counters {
		if _, err := collector.RegisterGauge(ctx, name); err != nil {
			continue
		}
		_ = collector.SetGauge(ctx, name, float64(value)) //nolint:errcheck
	}
}

// writeSnapshot exports the run's full object graph as indented JSON.
func writeSnapshot(path string, run *correlate.Context) error {
	data, err := json.MarshalIndent(correlate.Snapshot(run), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}
