package external

import (
	"github.com/arcwatch/attribution-hub/internal/data/model"
)

// SnapshotCounts is a severity tally inside an exported run snapshot.
type SnapshotCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
}

// SnapshotBuild is one build bound to a repository in a run snapshot.
type SnapshotBuild struct {
	Name        string `json:"name"`
	LastStarted string `json:"last_started"`
	Method      string `json:"method"`
	Branch      string `json:"branch,omitempty"`
	JobURL      string `json:"job_url,omitempty"`
}

// SnapshotArtifact is one attributed artifact in a run snapshot.
type SnapshotArtifact struct {
	Key            string         `json:"key"`
	RepoName       string         `json:"repo_name"`
	BuildName      string         `json:"build_name,omitempty"`
	BuildNumber    string         `json:"build_number,omitempty"`
	BuildTimestamp string         `json:"build_timestamp,omitempty"`
	SHA256         string         `json:"sha256,omitempty"`
	Counts         SnapshotCounts `json:"counts"`
	IsLatest       bool           `json:"is_latest"`
}

// SnapshotRepository is one repository with its builds and attributed
// artifacts in a run snapshot.
type SnapshotRepository struct {
	Name           string             `json:"name"`
	PublishType    string             `json:"publish_type"`
	DefaultBranch  string             `json:"default_branch,omitempty"`
	Builds         []SnapshotBuild    `json:"builds"`
	SeverityTotals SnapshotCounts     `json:"severity_totals"`
	Artifacts      []SnapshotArtifact `json:"artifacts,omitempty"`
}

// SnapshotStats mirrors the run counters carried in a snapshot.
type SnapshotStats struct {
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

// RunSnapshot is the exported form of a completed attribution run. The
// build_map section of the export is omitted here: it repeats repositories
// already present in the repositories list, collapsing revisits to marker
// strings, so the list is the authoritative source when reading one back.
type RunSnapshot struct {
	RunID              string               `json:"run_id"`
	Product            string               `json:"product"`
	Project            string               `json:"project"`
	Stats              SnapshotStats        `json:"stats"`
	Repositories       []SnapshotRepository `json:"repositories"`
	UnmappedBuildNames []string             `json:"unmapped_build_names"`
}

// MapSnapshotToRun converts a decoded run snapshot into the database model.
func MapSnapshotToRun(snap *RunSnapshot) *model.AttributionRun {
	if snap == nil {
		return nil
	}

	summaries := make([]model.RepositorySummary, 0, len(snap.Repositories))
	for _, repo := range snap.Repositories {
		buildNames := make(model.JSONStringArray, 0, len(repo.Builds))
		for _, build := range repo.Builds {
			buildNames = append(buildNames, build.Name)
		}

		artifacts := make([]model.ArtifactRecord, 0, len(repo.Artifacts))
		for _, artifact := range repo.Artifacts {
			artifacts = append(artifacts, model.ArtifactRecord{
				Key:            artifact.Key,
				BuildName:      artifact.BuildName,
				BuildNumber:    artifact.BuildNumber,
				BuildTimestamp: artifact.BuildTimestamp,
				SHA256:         artifact.SHA256,
				Critical:       artifact.Counts.Critical,
				High:           artifact.Counts.High,
				Medium:         artifact.Counts.Medium,
				Low:            artifact.Counts.Low,
				Unknown:        artifact.Counts.Unknown,
				IsLatest:       artifact.IsLatest,
			})
		}

		summaries = append(summaries, model.RepositorySummary{
			Name:        repo.Name,
			PublishType: repo.PublishType,
			Builds:      buildNames,
			Critical:    repo.SeverityTotals.Critical,
			High:        repo.SeverityTotals.High,
			Medium:      repo.SeverityTotals.Medium,
			Low:         repo.SeverityTotals.Low,
			Unknown:     repo.SeverityTotals.Unknown,
			Artifacts:   artifacts,
		})
	}

	return &model.AttributionRun{
		RunID:           snap.RunID,
		Product:         snap.Product,
		Project:         snap.Project,
		RepositoryCount: len(snap.Repositories),
		BuildCount:      snap.Stats.BuildsProcessed,
		MatchedCount:    snap.Stats.MetadataMatches + snap.Stats.PrefixMatches,
		UnmappedCount:   len(snap.UnmappedBuildNames),
		DroppedCount:    snap.Stats.FindingsDropped,
		Summaries:       summaries,
	}
}
