package types

import "context"

// BuildEntry is one row of the project-level build listing.
type BuildEntry struct {
	// Name is the CI build name with any leading slash stripped.
	Name string `json:"name"`
	// LastStarted is the start time of the most recent run, as reported upstream.
	LastStarted string `json:"lastStarted"`
}

// BuildRun identifies one numbered run of a build.
type BuildRun struct {
	Number  string `json:"number"`
	Started string `json:"started"`
}

// BuildDetail is the detail blob for a single build run.
type BuildDetail struct {
	Name         string `json:"name"`
	Number       string `json:"number"`
	Started      string `json:"started"`
	SourceRepo   string `json:"sourceRepo,omitempty"`
	SourceBranch string `json:"sourceBranch,omitempty"`
	JobURL       string `json:"jobUrl,omitempty"`
}

// BuildClient is the artifact-store surface the correlation engine consumes.
// Implementations are expected to scope all calls to a single project.
type BuildClient interface {
	// ListBuilds returns every build known to the project.
	ListBuilds(ctx context.Context) ([]BuildEntry, error)
	// GetBuildRuns returns the numbered runs recorded for a build.
	GetBuildRuns(ctx context.Context, name string) ([]BuildRun, error)
	// GetBuildDetail returns the detail blob for one run of a build.
	GetBuildDetail(ctx context.Context, name, number string) (*BuildDetail, error)
}
