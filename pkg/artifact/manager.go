package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/internal/cache"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// Searcher issues artifact listing queries against the artifact store.
type Searcher interface {
	// SearchRepo returns the full listing of a repository.
	SearchRepo(ctx context.Context, repo string) ([]Record, error)
	// SearchPairs returns only the records matching the given (path, name) pairs.
	SearchPairs(ctx context.Context, repo string, pairs []Pair) ([]Record, error)
}

// listingLRUSize bounds how many parsed repository listings stay in memory.
const listingLRUSize = 64

// cacheRepoResponsesDir is the per-project directory holding listing caches.
const cacheRepoResponsesDir = "cache_repo_responses"

// listingFile is the persisted shape of a repository listing cache.
type listingFile struct {
	Results []Record `json:"results"`
	Range   Range    `json:"range"`
}

// Range mirrors the result range block of the upstream query API.
type Range struct {
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
	Total    int `json:"total"`
}

// Manager maintains the per-repository artifact listing caches: a full
// refresh when a cache is absent or unreadable, a targeted merge for pairs a
// caller reports missing. Merge never touches existing entries.
type Manager struct {
	store    cache.Store
	searcher Searcher
	project  string
	logger   types.Logger
	listings *lru.Cache[string, []Record]
}

// NewManager creates a listing cache manager for one project.
func NewManager(store cache.Store, searcher Searcher, project string, logger types.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	listings, err := lru.New[string, []Record](listingLRUSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing cache: %w", err)
	}
	return &Manager{
		store:    store,
		searcher: searcher,
		project:  project,
		logger:   logger,
		listings: listings,
	}, nil
}

// cacheKey is the store key of a repository's listing cache.
func (m *Manager) cacheKey(repo string) string {
	return m.project + "/" + cacheRepoResponsesDir + "/" + repo + ".json"
}

// Listing returns the cached listing for repo. When no cache exists, or the
// existing cache cannot be parsed, a full listing query replaces it.
func (m *Manager) Listing(ctx context.Context, repo string) ([]Record, error) {
	if records, ok := m.listings.Get(repo); ok {
		return records, nil
	}

	key := m.cacheKey(repo)
	data, err := m.store.Get(key)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("failed to read listing cache for %s: %w", repo, err)
	}
	if err == nil {
		var file listingFile
		if jsonErr := json.Unmarshal(data, &file); jsonErr == nil {
			m.listings.Add(repo, file.Results)
			return file.Results, nil
		}
		m.logger.Warn("corrupt listing cache, forcing full refresh",
			zap.String("repo", repo), zap.String("key", key))
	}

	return m.fullRefresh(ctx, repo)
}

// fullRefresh replaces a repository's cache with a full listing query.
func (m *Manager) fullRefresh(ctx context.Context, repo string) ([]Record, error) {
	records, err := m.searcher.SearchRepo(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("full listing query failed for %s: %w", repo, err)
	}
	if err := m.persist(repo, records); err != nil {
		return nil, err
	}
	m.logger.Info("refreshed artifact listing",
		zap.String("repo", repo), zap.Int("artifacts", len(records)))
	m.listings.Add(repo, records)
	return records, nil
}

// RefreshMissing fetches only the given missing pairs and merges the response
// into the repository's cache. It returns the number of records actually
// added. With no usable cache on disk it falls back to a full refresh.
func (m *Manager) RefreshMissing(ctx context.Context, repo string, pairs []Pair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	key := m.cacheKey(repo)
	data, err := m.store.Get(key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			return 0, fmt.Errorf("failed to read listing cache for %s: %w", repo, err)
		}
		records, refreshErr := m.fullRefresh(ctx, repo)
		if refreshErr != nil {
			return 0, refreshErr
		}
		return len(records), nil
	}

	var file listingFile
	if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
		m.logger.Warn("corrupt listing cache, forcing full refresh",
			zap.String("repo", repo), zap.String("key", key))
		records, refreshErr := m.fullRefresh(ctx, repo)
		if refreshErr != nil {
			return 0, refreshErr
		}
		return len(records), nil
	}

	incoming, err := m.searcher.SearchPairs(ctx, repo, pairs)
	if err != nil {
		return 0, fmt.Errorf("targeted listing query failed for %s: %w", repo, err)
	}

	merged, added := MergeRecords(file.Results, incoming)
	if added > 0 {
		if err := m.persist(repo, merged); err != nil {
			return 0, err
		}
	}
	m.logger.Info("merged missing artifacts into listing cache",
		zap.String("repo", repo),
		zap.Int("requested", len(pairs)),
		zap.Int("added", added))
	m.listings.Add(repo, merged)
	return added, nil
}

// Lookup finds the record with the given (path, name) in the repository's
// listing. The boolean reports whether the pair was present.
func (m *Manager) Lookup(ctx context.Context, repo, path, name string) (*Record, bool, error) {
	records, err := m.Listing(ctx, repo)
	if err != nil {
		return nil, false, err
	}
	for i := range records {
		if records[i].Path == path && records[i].Name == name {
			return &records[i], true, nil
		}
	}
	return nil, false, nil
}

// persist writes a repository listing back to the store.
func (m *Manager) persist(repo string, records []Record) error {
	file := listingFile{
		Results: records,
		Range:   Range{StartPos: 0, EndPos: len(records), Total: len(records)},
	}
	data, err := json.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to encode listing cache for %s: %w", repo, err)
	}
	if err := m.store.Put(m.cacheKey(repo), data); err != nil {
		return fmt.Errorf("failed to write listing cache for %s: %w", repo, err)
	}
	return nil
}

// MergeRecords appends every incoming record whose (path, name) is not
// already present. Existing entries are never modified. It is the one
// authoritative merge implementation for listing caches.
func MergeRecords(existing, incoming []Record) ([]Record, int) {
	seen := make(map[Pair]struct{}, len(existing))
	for _, r := range existing {
		seen[Pair{Path: r.Path, Name: r.Name}] = struct{}{}
	}
	merged := existing
	added := 0
	for _, r := range incoming {
		p := Pair{Path: r.Path, Name: r.Name}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, r)
		added++
	}
	return merged, added
}
