package correlate

import (
	"fmt"
	"sort"
)

// Snapshot renders a run's object graph as JSON-marshalable maps for the
// debug export and for downstream storage. Each repository serializes in
// full at most once, tracked by pointer identity; later references collapse
// to a "<visited ...>" marker so shared pointers cannot duplicate or
// recurse. Primitive values bypass the tracking entirely.
func Snapshot(run *Context) map[string]interface{} {
	v := &snapshotVisitor{visited: make(map[*Repository]bool)}
	return v.visitRun(run)
}

// snapshotVisitor tracks repositories by pointer identity while walking
// the run graph.
type snapshotVisitor struct {
	visited map[*Repository]bool
}

func (v *snapshotVisitor) visitRun(run *Context) map[string]interface{} {
	repositories := make([]interface{}, 0, len(run.repos))
	for _, repo := range run.Repositories() {
		repositories = append(repositories, v.visitRepository(repo))
	}

	boundNames := make([]string, 0, len(run.buildMap))
	for name := range run.buildMap {
		boundNames = append(boundNames, name)
	}
	sort.Strings(boundNames)
	buildMap := make(map[string]interface{}, len(boundNames))
	for _, name := range boundNames {
		buildMap[name] = v.visitRepository(run.buildMap[name])
	}

	return map[string]interface{}{
		"run_id":               run.RunID,
		"product":              run.Product,
		"project":              run.Project,
		"stats":                v.visitStats(run.Stats),
		"repositories":         repositories,
		"build_map":            buildMap,
		"unmapped_build_names": run.UnmappedNames(),
	}
}

func (v *snapshotVisitor) visitRepository(repo *Repository) interface{} {
	if repo == nil {
		return nil
	}
	if v.visited[repo] {
		return fmt.Sprintf("<visited repository %s>", repo.Name)
	}
	v.visited[repo] = true

	builds := make([]interface{}, 0, len(repo.Builds))
	for _, name := range repo.BuildNames() {
		builds = append(builds, v.visitBuild(repo.Builds[name]))
	}
	out := map[string]interface{}{
		"name":            repo.Name,
		"publish_type":    string(repo.PublishType()),
		"builds":          builds,
		"severity_totals": v.visitCounts(repo.SeverityTotals()),
	}
	if repo.DefaultBranch != "" {
		out["default_branch"] = repo.DefaultBranch
	}
	if latest, ok := repo.LatestBuild(); ok {
		if latest.Branch != "" {
			out["branch"] = latest.Branch
		}
		if latest.JobURL != "" {
			out["job_url"] = latest.JobURL
		}
	}
	if repo.Vulns != nil && len(repo.Vulns.Artifacts) > 0 {
		artifacts := make([]interface{}, 0, len(repo.Vulns.Artifacts))
		for _, a := range repo.Vulns.Artifacts {
			artifacts = append(artifacts, v.visitArtifact(a))
		}
		out["artifacts"] = artifacts
	}
	return out
}

func (v *snapshotVisitor) visitBuild(rec BuildRecord) map[string]interface{} {
	out := map[string]interface{}{
		"name":         rec.Name,
		"last_started": rec.LastStarted,
		"method":       string(rec.Method),
	}
	if rec.Branch != "" {
		out["branch"] = rec.Branch
	}
	if rec.JobURL != "" {
		out["job_url"] = rec.JobURL
	}
	return out
}

func (v *snapshotVisitor) visitArtifact(a DeployedArtifact) map[string]interface{} {
	out := map[string]interface{}{
		"key":       a.Key,
		"repo_name": a.RepoName,
		"is_latest": a.IsLatestTag(),
		"counts":    v.visitCounts(a.Counts),
	}
	if a.BuildName != "" {
		out["build_name"] = a.BuildName
	}
	if a.BuildNumber != "" {
		out["build_number"] = a.BuildNumber
	}
	if a.BuildTimestamp != "" {
		out["build_timestamp"] = a.BuildTimestamp
	}
	if a.SHA256 != "" {
		out["sha256"] = a.SHA256
	}
	return out
}

func (v *snapshotVisitor) visitCounts(c SeverityCounts) map[string]interface{} {
	return map[string]interface{}{
		"critical": c.Critical,
		"high":     c.High,
		"medium":   c.Medium,
		"low":      c.Low,
		"unknown":  c.Unknown,
	}
}

func (v *snapshotVisitor) visitStats(s Stats) map[string]interface{} {
	return map[string]interface{}{
		"builds_processed":     s.BuildsProcessed,
		"cache_hits":           s.CacheHits,
		"api_calls":            s.APICalls,
		"metadata_matches":     s.MetadataMatches,
		"prefix_matches":       s.PrefixMatches,
		"unknown_source_repos": s.UnknownSourceRepos,
		"findings_attributed":  s.FindingsAttributed,
		"findings_skipped":     s.FindingsSkipped,
		"findings_dropped":     s.FindingsDropped,
	}
}
