package correlate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/pkg/types"
)

// progressInterval controls how often the matcher reports progress while
// walking a project's build list.
const progressInterval = 25

// Matcher resolves every build in a project listing to the repository that
// produced it, preferring the SOURCE_REPO metadata property and falling
// back to longest-prefix matching on the build name.
type Matcher struct {
	metadata *MetadataCache
	logger   types.Logger
}

// NewMatcher creates a Matcher backed by the given metadata cache.
func NewMatcher(metadata *MetadataCache, logger types.Logger) (*Matcher, error) {
	if metadata == nil {
		return nil, fmt.Errorf("metadata cache cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Matcher{metadata: metadata, logger: logger}, nil
}

// Run matches every listed build to a repository in the run's context.
// Builds whose detail cannot be fetched are skipped; builds that resolve to
// no repository are recorded as unmapped for the remainder of the run.
func (m *Matcher) Run(ctx context.Context, run *Context, builds []types.BuildEntry) {
	total := len(builds)
	m.logger.Info("Matching builds to repositories",
		zap.String("project", run.Project), zap.Int("builds", total))

	for _, entry := range builds {
		if entry.Name == "" || entry.LastStarted == "" {
			continue
		}
		run.Stats.BuildsProcessed++
		if run.Stats.BuildsProcessed%progressInterval == 0 {
			m.logger.Info("Build matching progress",
				zap.Int("processed", run.Stats.BuildsProcessed),
				zap.Int("total", total),
				zap.Int("apiCalls", run.Stats.APICalls),
				zap.Int("cacheHits", run.Stats.CacheHits))
		}

		detail, hit, err := m.metadata.Details(ctx, entry.Name, entry.LastStarted)
		if err != nil {
			m.logger.Warn("Failed to fetch build detail",
				zap.String("build", entry.Name), zap.Error(err))
			continue
		}
		if hit {
			run.Stats.CacheHits++
		} else if detail != nil {
			// A miss costs the run listing plus the detail fetch.
			run.Stats.APICalls += 2
		}
		if detail == nil {
			m.logger.Debug("No detail available for build", zap.String("build", entry.Name))
			continue
		}
		m.matchBuild(run, entry, detail)
	}

	m.logger.Info("Build matching completed",
		zap.Int("processed", run.Stats.BuildsProcessed),
		zap.Int("apiCalls", run.Stats.APICalls),
		zap.Int("cacheHits", run.Stats.CacheHits),
		zap.Int("metadataMatches", run.Stats.MetadataMatches),
		zap.Int("prefixMatches", run.Stats.PrefixMatches),
		zap.Int("unmapped", len(run.UnmappedNames())))
}

// matchBuild applies the metadata-then-prefix matching rules to one build.
func (m *Matcher) matchBuild(run *Context, entry types.BuildEntry, detail *types.BuildDetail) {
	if detail.SourceRepo != "" {
		repo, ok := run.Repository(detail.SourceRepo)
		if !ok {
			run.Stats.UnknownSourceRepos++
			run.MarkUnmapped(entry.Name)
			m.logger.Debug("Build metadata names a repository outside the product",
				zap.String("build", entry.Name), zap.String("sourceRepo", detail.SourceRepo))
			return
		}
		repo.AttachBuild(BuildRecord{
			Name:        entry.Name,
			LastStarted: entry.LastStarted,
			Branch:      detail.SourceBranch,
			JobURL:      detail.JobURL,
			Method:      MatchMetadata,
		})
		run.Bind(entry.Name, repo)
		run.Stats.MetadataMatches++
		return
	}

	if name, ok := longestPrefixMatch(entry.Name, run.RepoNames()); ok {
		repo, _ := run.Repository(name)
		// Prefix matches carry no branch information.
		repo.AttachBuild(BuildRecord{
			Name:        entry.Name,
			LastStarted: entry.LastStarted,
			JobURL:      detail.JobURL,
			Method:      MatchLongestPrefix,
		})
		run.Bind(entry.Name, repo)
		run.Stats.PrefixMatches++
		m.logger.Debug("Matched build by longest prefix",
			zap.String("build", entry.Name), zap.String("repo", name))
		return
	}

	run.MarkUnmapped(entry.Name)
	m.logger.Debug("No repository match for build", zap.String("build", entry.Name))
}

// longestPrefixMatch picks the longest repository name that prefixes the
// build name at a word boundary: the name either equals the build name or
// is followed by a '-'. Equal-length candidates tie-break to the
// lexicographically smallest name so runs are reproducible.
func longestPrefixMatch(build string, repos []string) (string, bool) {
	var (
		best  string
		found bool
	)
	for _, name := range repos {
		if name == "" || !strings.HasPrefix(build, name) {
			continue
		}
		if len(name) < len(build) && build[len(name)] != '-' {
			continue
		}
		if !found || len(name) > len(best) || (len(name) == len(best) && name < best) {
			best, found = name, true
		}
	}
	return best, found
}
