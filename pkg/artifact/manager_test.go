package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/arcwatch/attribution-hub/internal/cache"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// fakeSearcher counts query calls so tests can assert how often the network
// would have been hit.
type fakeSearcher struct {
	repoResults map[string][]Record
	pairResults map[string][]Record
	repoCalls   int
	pairCalls   int
	err         error
}

func (f *fakeSearcher) SearchRepo(_ context.Context, repo string) ([]Record, error) {
	f.repoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.repoResults[repo], nil
}

func (f *fakeSearcher) SearchPairs(_ context.Context, repo string, _ []Pair) ([]Record, error) {
	f.pairCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pairResults[repo], nil
}

func newTestManager(t *testing.T, store cache.Store, searcher Searcher) *Manager {
	t.Helper()
	m, err := NewManager(store, searcher, "falcon-prod", &types.MockLogger{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func seedCache(t *testing.T, store cache.Store, repo string, records []Record) {
	t.Helper()
	data, err := json.Marshal(&listingFile{
		Results: records,
		Range:   Range{StartPos: 0, EndPos: len(records), Total: len(records)},
	})
	if err != nil {
		t.Fatalf("failed to marshal listing file: %v", err)
	}
	key := "falcon-prod/" + cacheRepoResponsesDir + "/" + repo + ".json"
	if err := store.Put(key, data); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
}

func TestNewManagerGuards(t *testing.T) {
	store := cache.NewMemoryStore()
	searcher := &fakeSearcher{}
	logger := &types.MockLogger{}

	testCases := []struct {
		name string
		err  func() error
	}{
		{"nil store", func() error { _, err := NewManager(nil, searcher, "p", logger); return err }},
		{"nil searcher", func() error { _, err := NewManager(store, nil, "p", logger); return err }},
		{"empty project", func() error { _, err := NewManager(store, searcher, "", logger); return err }},
		{"nil logger", func() error { _, err := NewManager(store, searcher, "p", nil); return err }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err() == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}

func TestListingFullRefreshWhenMissing(t *testing.T) {
	store := cache.NewMemoryStore()
	searcher := &fakeSearcher{
		repoResults: map[string][]Record{
			"alert-service-local": {{Repo: "alert-service-local", Path: "a", Name: "m.json"}},
		},
	}
	m := newTestManager(t, store, searcher)

	records, err := m.Listing(context.Background(), "alert-service-local")
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if len(records) != 1 || searcher.repoCalls != 1 {
		t.Errorf("Listing() = %d records after %d calls, want 1 record after 1 call",
			len(records), searcher.repoCalls)
	}

	// The refreshed listing is persisted in the expected cache file shape.
	data, err := store.Get("falcon-prod/cache_repo_responses/alert-service-local.json")
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	var file listingFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("cache file not parsable: %v", err)
	}
	if file.Range.Total != 1 {
		t.Errorf("Range.Total = %d, want 1", file.Range.Total)
	}

	// Second call is served from memory, no extra queries.
	if _, err := m.Listing(context.Background(), "alert-service-local"); err != nil {
		t.Fatalf("Listing() second call error = %v", err)
	}
	if searcher.repoCalls != 1 {
		t.Errorf("repoCalls = %d after second Listing, want 1", searcher.repoCalls)
	}
}

func TestListingReadsExistingCache(t *testing.T) {
	store := cache.NewMemoryStore()
	seedCache(t, store, "alert-service-local", []Record{{Path: "a", Name: "m.json"}})
	searcher := &fakeSearcher{}
	m := newTestManager(t, store, searcher)

	records, err := m.Listing(context.Background(), "alert-service-local")
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
	if searcher.repoCalls != 0 {
		t.Errorf("repoCalls = %d, want 0 when cache is present", searcher.repoCalls)
	}
}

func TestListingCorruptCacheForcesFullRefresh(t *testing.T) {
	store := cache.NewMemoryStore()
	key := "falcon-prod/" + cacheRepoResponsesDir + "/broken-local.json"
	if err := store.Put(key, []byte("{not json")); err != nil {
		t.Fatalf("failed to seed corrupt cache: %v", err)
	}
	searcher := &fakeSearcher{
		repoResults: map[string][]Record{
			"broken-local": {{Path: "x", Name: "y.json"}},
		},
	}
	m := newTestManager(t, store, searcher)

	records, err := m.Listing(context.Background(), "broken-local")
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if len(records) != 1 || searcher.repoCalls != 1 {
		t.Errorf("corrupt cache should force one full refresh, got %d records after %d calls",
			len(records), searcher.repoCalls)
	}

	// The corrupt file was replaced with a parsable one.
	data, err := store.Get(key)
	if err != nil {
		t.Fatalf("cache file missing after refresh: %v", err)
	}
	var file listingFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Errorf("cache file still not parsable after refresh: %v", err)
	}
}

func TestRefreshMissingMergesOnlyNewPairs(t *testing.T) {
	store := cache.NewMemoryStore()
	seedCache(t, store, "alert-service-local", []Record{{Path: "a", Name: "one.json"}})
	searcher := &fakeSearcher{
		pairResults: map[string][]Record{
			"alert-service-local": {
				{Path: "a", Name: "one.json"},
				{Path: "b", Name: "two.json"},
			},
		},
	}
	m := newTestManager(t, store, searcher)

	added, err := m.RefreshMissing(context.Background(), "alert-service-local", []Pair{
		{Path: "b", Name: "two.json"},
	})
	if err != nil {
		t.Fatalf("RefreshMissing() error = %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if searcher.pairCalls != 1 || searcher.repoCalls != 0 {
		t.Errorf("calls = %d pair / %d repo, want 1 / 0", searcher.pairCalls, searcher.repoCalls)
	}

	records, err := m.Listing(context.Background(), "alert-service-local")
	if err != nil {
		t.Fatalf("Listing() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d after merge, want 2", len(records))
	}
}

func TestRefreshMissingEmptyPairs(t *testing.T) {
	store := cache.NewMemoryStore()
	searcher := &fakeSearcher{}
	m := newTestManager(t, store, searcher)

	added, err := m.RefreshMissing(context.Background(), "alert-service-local", nil)
	if err != nil {
		t.Fatalf("RefreshMissing() error = %v", err)
	}
	if added != 0 || searcher.pairCalls != 0 || searcher.repoCalls != 0 {
		t.Errorf("RefreshMissing(nil) = %d added, %d/%d calls; want all zero",
			added, searcher.pairCalls, searcher.repoCalls)
	}
}

func TestRefreshMissingWithoutCacheFallsBackToFull(t *testing.T) {
	store := cache.NewMemoryStore()
	searcher := &fakeSearcher{
		repoResults: map[string][]Record{
			"alert-service-local": {
				{Path: "a", Name: "one.json"},
				{Path: "b", Name: "two.json"},
			},
		},
	}
	m := newTestManager(t, store, searcher)

	added, err := m.RefreshMissing(context.Background(), "alert-service-local", []Pair{
		{Path: "a", Name: "one.json"},
	})
	if err != nil {
		t.Fatalf("RefreshMissing() error = %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want full listing size 2", added)
	}
	if searcher.repoCalls != 1 || searcher.pairCalls != 0 {
		t.Errorf("calls = %d repo / %d pair, want 1 / 0", searcher.repoCalls, searcher.pairCalls)
	}
}

func TestRefreshMissingQueryError(t *testing.T) {
	store := cache.NewMemoryStore()
	seedCache(t, store, "alert-service-local", []Record{{Path: "a", Name: "one.json"}})
	searcher := &fakeSearcher{err: fmt.Errorf("boom")}
	m := newTestManager(t, store, searcher)

	if _, err := m.RefreshMissing(context.Background(), "alert-service-local", []Pair{
		{Path: "b", Name: "two.json"},
	}); err == nil {
		t.Error("RefreshMissing() expected error, got nil")
	}
}

func TestLookup(t *testing.T) {
	store := cache.NewMemoryStore()
	seedCache(t, store, "alert-service-local", []Record{
		{Path: "staging/alert-service/3f9ab2", Name: "manifest.json", Properties: []Property{
			{Key: "build.name", Value: "alert-service"},
		}},
	})
	m := newTestManager(t, store, &fakeSearcher{})

	record, found, err := m.Lookup(context.Background(), "alert-service-local", "staging/alert-service/3f9ab2", "manifest.json")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !found {
		t.Fatal("Lookup() found = false, want true")
	}
	if got := record.BuildInfo().BuildName; got != "alert-service" {
		t.Errorf("BuildName = %q, want %q", got, "alert-service")
	}

	_, found, err = m.Lookup(context.Background(), "alert-service-local", "staging/other", "manifest.json")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if found {
		t.Error("Lookup() found = true for absent pair, want false")
	}
}
