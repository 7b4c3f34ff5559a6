package external

import (
	"github.com/arcwatch/attribution-hub/pkg/correlate"
)

// RepositoryRecord is one repository row of the catalog listing.
type RepositoryRecord struct {
	RepoName      string `json:"repo_name"`
	FullName      string `json:"full_name,omitempty"`
	GithubID      string `json:"github_id,omitempty"`
	ID            int64  `json:"id,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	IsPrivate     bool   `json:"is_private,omitempty"`
	CreatedAt     string `json:"repo_created_at,omitempty"`
	UpdatedAt     string `json:"repo_updated_at,omitempty"`
}

// Pagination describes the page structure of a catalog listing response.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total,omitempty"`
}

// RepositoriesPage is one page of the catalog repository listing.
type RepositoriesPage struct {
	Repositories []RepositoryRecord `json:"repositories"`
	Pagination   Pagination         `json:"pagination"`
}

// MapRepositories converts catalog records into engine repositories.
// Records without a repository name are dropped; a missing default branch
// falls back to "main", matching the catalog's own convention.
func MapRepositories(records []RepositoryRecord) []*correlate.Repository {
	repos := make([]*correlate.Repository, 0, len(records))
	for _, rec := range records {
		if rec.RepoName == "" {
			continue
		}
		branch := rec.DefaultBranch
		if branch == "" {
			branch = "main"
		}
		repos = append(repos, correlate.NewRepository(rec.RepoName, branch))
	}
	return repos
}
