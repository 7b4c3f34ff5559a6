package correlate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/pkg/types"
)

// Engine wires the full attribution pipeline for one product run: list the
// project's builds, snapshot the listing, match builds to repositories,
// then attribute vulnerability findings through the listing cache.
type Engine struct {
	client     types.BuildClient
	metadata   *MetadataCache
	matcher    *Matcher
	correlator *Correlator
	logger     types.Logger
}

// NewEngine assembles an Engine from its collaborators.
func NewEngine(client types.BuildClient, metadata *MetadataCache, listings ListingCache, logger types.Logger) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	matcher, err := NewMatcher(metadata, logger)
	if err != nil {
		return nil, err
	}
	correlator, err := NewCorrelator(listings, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{
		client:     client,
		metadata:   metadata,
		matcher:    matcher,
		correlator: correlator,
		logger:     logger,
	}, nil
}

// Run executes the pipeline against the run's context. Only a failure to
// list the project's builds is returned as an error; everything downstream
// degrades per item and is reflected in the run's stats.
func (e *Engine) Run(ctx context.Context, run *Context, findings []Finding) error {
	builds, err := e.client.ListBuilds(ctx)
	if err != nil {
		return fmt.Errorf("failed to list builds for project %q: %w", run.Project, err)
	}
	e.logger.Info("Fetched project build list",
		zap.String("project", run.Project), zap.Int("builds", len(builds)))
	if err := e.metadata.SaveBuildList(run.Product, builds); err != nil {
		e.logger.Warn("Failed to save build list snapshot", zap.Error(err))
	}

	e.matcher.Run(ctx, run, builds)
	e.correlator.Attribute(ctx, run, findings)

	e.logger.Info("Attribution run completed",
		zap.String("runID", run.RunID),
		zap.Int("boundBuilds", run.BoundBuilds()),
		zap.Int("unmappedBuilds", len(run.UnmappedNames())),
		zap.Int("findingsAttributed", run.Stats.FindingsAttributed),
		zap.Int("findingsDropped", run.Stats.FindingsDropped))
	return nil
}
