package correlate

import (
	"sort"

	"github.com/google/uuid"
)

// Stats counts what happened during a run, for summary logs and metrics.
type Stats struct {
	BuildsProcessed    int `json:"builds_processed"`
	CacheHits          int `json:"cache_hits"`
	APICalls           int `json:"api_calls"`
	MetadataMatches    int `json:"metadata_matches"`
	PrefixMatches      int `json:"prefix_matches"`
	UnknownSourceRepos int `json:"unknown_source_repos"`
	FindingsAttributed int `json:"findings_attributed"`
	FindingsSkipped    int `json:"findings_skipped"`
	FindingsDropped    int `json:"findings_dropped"`
}

// Context is the mutable state of one attribution run: the repositories
// under consideration, the build-name-to-repository map the Matcher builds,
// and the monotonic set of build names declared unmapped. It is owned by a
// single run and is not safe for concurrent use.
type Context struct {
	RunID   string
	Product string
	Project string
	Stats   Stats

	repos    map[string]*Repository
	buildMap map[string]*Repository
	unmapped map[string]struct{}
}

// NewContext seeds a run with the product's known repositories. Entries
// without a name are ignored.
func NewContext(product, project string, repos []*Repository) *Context {
	c := &Context{
		RunID:    uuid.NewString(),
		Product:  product,
		Project:  project,
		repos:    make(map[string]*Repository, len(repos)),
		buildMap: make(map[string]*Repository),
		unmapped: make(map[string]struct{}),
	}
	for _, r := range repos {
		if r != nil && r.Name != "" {
			c.repos[r.Name] = r
		}
	}
	return c
}

// Repository looks up a known repository by exact name.
func (c *Context) Repository(name string) (*Repository, bool) {
	r, ok := c.repos[name]
	return r, ok
}

// RepoNames returns the known repository names in sorted order.
func (c *Context) RepoNames() []string {
	names := make([]string, 0, len(c.repos))
	for name := range c.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Repositories returns the known repositories sorted by name.
func (c *Context) Repositories() []*Repository {
	repos := make([]*Repository, 0, len(c.repos))
	for _, name := range c.RepoNames() {
		repos = append(repos, c.repos[name])
	}
	return repos
}

// Bind records that a build name resolves to a repository.
func (c *Context) Bind(buildName string, repo *Repository) {
	c.buildMap[buildName] = repo
}

// Resolve maps a build name to its repository.
func (c *Context) Resolve(buildName string) (*Repository, bool) {
	r, ok := c.buildMap[buildName]
	return r, ok
}

// BoundBuilds returns how many build names are currently mapped.
func (c *Context) BoundBuilds() int {
	return len(c.buildMap)
}

// MarkUnmapped declares a build name unresolvable for the remainder of the
// run. The set only grows; nothing removes entries within a run.
func (c *Context) MarkUnmapped(buildName string) {
	c.unmapped[buildName] = struct{}{}
}

// IsUnmapped reports whether the build name was declared unresolvable.
func (c *Context) IsUnmapped(buildName string) bool {
	_, ok := c.unmapped[buildName]
	return ok
}

// UnmappedNames returns the unmapped build names in sorted order.
func (c *Context) UnmappedNames() []string {
	names := make([]string, 0, len(c.unmapped))
	for name := range c.unmapped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
