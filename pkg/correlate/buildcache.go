package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/internal/cache"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// buildListFile is the snapshot of the most recent project build listing,
// replaced wholesale on every run.
const buildListFile = "build_list_current.json"

// timestampSanitizer rewrites characters that are unsafe in cache file
// names; the sanitized timestamp still uniquely identifies the run.
var timestampSanitizer = strings.NewReplacer(":", "-", ".", "-", "+", "-")

// MetadataCache caches per-build detail blobs keyed by the build's
// last-started timestamp, so a build is only refetched after it runs again.
type MetadataCache struct {
	store   cache.Store
	client  types.BuildClient
	project string
	logger  types.Logger
}

// NewMetadataCache creates a MetadataCache scoped to one project.
func NewMetadataCache(store cache.Store, client types.BuildClient, project string, logger types.Logger) (*MetadataCache, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &MetadataCache{store: store, client: client, project: project, logger: logger}, nil
}

// detailKey names the cached detail blob for one (build, lastStarted) pair.
func (m *MetadataCache) detailKey(build, lastStarted string) string {
	return path.Join(m.project, build, "details_"+timestampSanitizer.Replace(lastStarted)+".json")
}

// Details returns the detail blob for the build at the given last-started
// timestamp. The boolean reports a cache hit; on a miss the run listing and
// the latest run's detail are fetched and any stale cached detail for the
// build is replaced. A nil detail with a nil error means the CI system has
// no usable data for the build.
func (m *MetadataCache) Details(ctx context.Context, name, lastStarted string) (*types.BuildDetail, bool, error) {
	key := m.detailKey(name, lastStarted)
	if data, err := m.store.Get(key); err == nil {
		var detail types.BuildDetail
		if jsonErr := json.Unmarshal(data, &detail); jsonErr == nil {
			return &detail, true, nil
		}
		m.logger.Warn("Discarding unreadable cached build detail",
			zap.String("build", name), zap.String("key", key))
	}
	runs, err := m.client.GetBuildRuns(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch runs for build %q: %w", name, err)
	}
	if len(runs) == 0 {
		m.logger.Debug("Build has no recorded runs", zap.String("build", name))
		return nil, false, nil
	}
	latest := runs[0]
	for _, run := range runs[1:] {
		if run.Started > latest.Started {
			latest = run
		}
	}
	detail, err := m.client.GetBuildDetail(ctx, name, latest.Number)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch detail for build %q run %q: %w", name, latest.Number, err)
	}
	if detail == nil {
		return nil, false, nil
	}
	m.replaceCached(name, key, detail)
	return detail, false, nil
}

// replaceCached drops older timestamped detail files for the build and
// stores the fresh one. Write failures only cost a refetch next run.
func (m *MetadataCache) replaceCached(name, key string, detail *types.BuildDetail) {
	if keys, err := m.store.Keys(path.Join(m.project, name)); err == nil {
		for _, old := range keys {
			if old == key || !strings.HasPrefix(path.Base(old), "details_") {
				continue
			}
			if err := m.store.Delete(old); err != nil {
				m.logger.Warn("Failed to remove stale build detail",
					zap.String("key", old), zap.Error(err))
			}
		}
	}
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		m.logger.Warn("Failed to encode build detail for caching",
			zap.String("build", name), zap.Error(err))
		return
	}
	if err := m.store.Put(key, data); err != nil {
		m.logger.Warn("Failed to cache build detail",
			zap.String("build", name), zap.Error(err))
	}
}

// buildListSnapshot mirrors the on-disk build listing snapshot layout.
type buildListSnapshot struct {
	Timestamp   string             `json:"timestamp"`
	Product     string             `json:"product"`
	Project     string             `json:"project"`
	TotalBuilds int                `json:"total_builds"`
	Builds      []types.BuildEntry `json:"builds"`
}

// SaveBuildList replaces the project's current-build-list snapshot.
func (m *MetadataCache) SaveBuildList(product string, builds []types.BuildEntry) error {
	snap := buildListSnapshot{
		Timestamp:   time.Now().Format("20060102_150405"),
		Product:     product,
		Project:     m.project,
		TotalBuilds: len(builds),
		Builds:      builds,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode build list: %w", err)
	}
	if err := m.store.Put(path.Join(m.project, buildListFile), data); err != nil {
		return fmt.Errorf("failed to store build list: %w", err)
	}
	m.logger.Info("Saved current build list",
		zap.String("project", m.project), zap.Int("builds", len(builds)))
	return nil
}
