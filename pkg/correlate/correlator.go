package correlate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/pkg/artifact"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// ListingCache is the artifact listing surface the Correlator consumes.
// *artifact.Manager satisfies it.
type ListingCache interface {
	// Lookup finds one artifact record by (path, name) within a repository.
	Lookup(ctx context.Context, repo, path, name string) (*artifact.Record, bool, error)
	// RefreshMissing runs a targeted query for the given pairs and merges
	// the results into the repository's cached listing.
	RefreshMissing(ctx context.Context, repo string, pairs []artifact.Pair) (int, error)
}

// Correlator attributes vulnerability findings to repositories by resolving
// each finding's artifact key to a build name through the listing cache and
// the build name to a repository through the run's global map.
type Correlator struct {
	listings ListingCache
	logger   types.Logger
}

// NewCorrelator creates a Correlator over the given listing cache.
func NewCorrelator(listings ListingCache, logger types.Logger) (*Correlator, error) {
	if listings == nil {
		return nil, fmt.Errorf("listings cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Correlator{listings: listings, logger: logger}, nil
}

// pendingFinding is a finding whose artifact was absent from the listing
// cache on first lookup and is retried after a targeted refresh.
type pendingFinding struct {
	finding Finding
	key     artifact.Key
}

// repoPair identifies one (path, name) request within a repository, used to
// dedupe the targeted refresh batches.
type repoPair struct {
	repo string
	pair artifact.Pair
}

// Attribute walks the findings and appends a DeployedArtifact to the owning
// repository for every finding it can resolve. Findings referencing
// non-local repositories, unparsable keys, or unmapped builds are counted
// and skipped; nothing here aborts the run.
func (c *Correlator) Attribute(ctx context.Context, run *Context, findings []Finding) {
	c.logger.Info("Attributing vulnerability findings",
		zap.String("product", run.Product), zap.Int("findings", len(findings)))

	var (
		deferred []pendingFinding
		missing  = make(map[string][]artifact.Pair)
		batched  = make(map[repoPair]struct{})
	)
	for _, f := range findings {
		key, err := artifact.ParseKey(f.ArtifactKey)
		if err != nil {
			run.Stats.FindingsSkipped++
			c.logger.Debug("Skipping malformed artifact key", zap.String("key", f.ArtifactKey))
			continue
		}
		if !artifact.IsLocalRepo(key.Repo) {
			run.Stats.FindingsSkipped++
			continue
		}
		rec, ok, err := c.listings.Lookup(ctx, key.Repo, key.Path, key.Name)
		if err != nil {
			run.Stats.FindingsDropped++
			c.logger.Warn("Artifact listing lookup failed",
				zap.String("repo", key.Repo), zap.Error(err))
			continue
		}
		if !ok {
			rp := repoPair{repo: key.Repo, pair: artifact.Pair{Path: key.Path, Name: key.Name}}
			if _, dup := batched[rp]; !dup {
				batched[rp] = struct{}{}
				missing[rp.repo] = append(missing[rp.repo], rp.pair)
			}
			deferred = append(deferred, pendingFinding{finding: f, key: key})
			continue
		}
		c.attribute(run, f, rec)
	}

	c.refreshMissing(ctx, missing)

	for _, p := range deferred {
		rec, ok, err := c.listings.Lookup(ctx, p.key.Repo, p.key.Path, p.key.Name)
		if err != nil || !ok {
			run.Stats.FindingsDropped++
			c.logger.Debug("Artifact absent from listing cache after refresh",
				zap.String("key", p.finding.ArtifactKey))
			continue
		}
		c.attribute(run, p.finding, rec)
	}

	c.logger.Info("Finding attribution completed",
		zap.Int("attributed", run.Stats.FindingsAttributed),
		zap.Int("skipped", run.Stats.FindingsSkipped),
		zap.Int("dropped", run.Stats.FindingsDropped))
}

// refreshMissing issues one targeted listing refresh per repository with
// missing pairs. Repositories are refreshed in name order so the API call
// sequence is reproducible.
func (c *Correlator) refreshMissing(ctx context.Context, missing map[string][]artifact.Pair) {
	repos := make([]string, 0, len(missing))
	for repo := range missing {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	for _, repo := range repos {
		added, err := c.listings.RefreshMissing(ctx, repo, missing[repo])
		if err != nil {
			c.logger.Warn("Targeted listing refresh failed",
				zap.String("repo", repo), zap.Error(err))
			continue
		}
		c.logger.Info("Refreshed listing for missing artifacts",
			zap.String("repo", repo),
			zap.Int("requested", len(missing[repo])),
			zap.Int("added", added))
	}
}

// attribute resolves one finding whose artifact record is in hand.
func (c *Correlator) attribute(run *Context, f Finding, rec *artifact.Record) {
	info := rec.BuildInfo()
	if info.BuildName == "" {
		run.Stats.FindingsDropped++
		c.logger.Debug("Artifact carries no build name", zap.String("key", f.ArtifactKey))
		return
	}
	if run.IsUnmapped(info.BuildName) {
		run.Stats.FindingsSkipped++
		return
	}
	repo, ok := run.Resolve(info.BuildName)
	if !ok {
		run.MarkUnmapped(info.BuildName)
		run.Stats.FindingsDropped++
		c.logger.Debug("Build name resolves to no repository",
			zap.String("build", info.BuildName), zap.String("key", f.ArtifactKey))
		return
	}
	if repo.Vulns == nil {
		repo.Vulns = &DependenciesVulnerabilities{}
	}
	repo.Vulns.Append(DeployedArtifact{
		Key:            f.ArtifactKey,
		RepoName:       repo.Name,
		BuildName:      info.BuildName,
		BuildNumber:    info.BuildNumber,
		BuildTimestamp: info.BuildTimestamp,
		SHA256:         info.SHA256,
		Counts:         f.Counts,
	})
	run.Stats.FindingsAttributed++
}
