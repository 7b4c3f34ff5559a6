// Package correlate attributes CI builds and deployed artifacts to the
// source repositories that produced them.
//
// The package is organized around a per-run Context: the Matcher fills it
// with a build-name-to-repository map by reading build metadata, and the
// Correlator uses that map to attach vulnerability findings to repositories
// through the per-repository artifact listing cache.
package correlate

import (
	"sort"
	"strconv"
	"strings"
)

// PublishType classifies how many distinct CI builds publish artifacts for
// a repository.
type PublishType string

const (
	// PublishUnknown means no build has been matched to the repository.
	PublishUnknown PublishType = "unknown"
	// PublishMono means exactly one build publishes for the repository.
	PublishMono PublishType = "mono"
	// PublishMulti means several builds publish for the repository.
	PublishMulti PublishType = "multi"
)

// MatchMethod records how a build was associated with a repository.
type MatchMethod string

const (
	// MatchMetadata is an exact match on the build's SOURCE_REPO property.
	MatchMetadata MatchMethod = "metadata"
	// MatchLongestPrefix is a fallback match on the build name prefix.
	MatchLongestPrefix MatchMethod = "longest-prefix"
	// MatchUnmapped marks a build that could not be matched at all.
	MatchUnmapped MatchMethod = "unmapped"
)

// SeverityCounts is a per-severity vulnerability tally.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
}

// Add accumulates another tally into this one.
func (s *SeverityCounts) Add(other SeverityCounts) {
	s.Critical += other.Critical
	s.High += other.High
	s.Medium += other.Medium
	s.Low += other.Low
	s.Unknown += other.Unknown
}

// Total returns the sum across all severities.
func (s SeverityCounts) Total() int {
	return s.Critical + s.High + s.Medium + s.Low + s.Unknown
}

// Finding is one dependency-vulnerability result from the upstream source,
// keyed by the artifact that exhibits it.
type Finding struct {
	ArtifactKey string         `json:"artifactKey"`
	Counts      SeverityCounts `json:"counts"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// BuildRecord is one CI build matched to a repository.
type BuildRecord struct {
	Name        string      `json:"name"`
	LastStarted string      `json:"lastStarted"`
	Branch      string      `json:"branch,omitempty"`
	JobURL      string      `json:"jobUrl,omitempty"`
	Method      MatchMethod `json:"method"`
}

// DeployedArtifact is a published artifact carrying vulnerability counts,
// attributed to the repository whose build produced it.
type DeployedArtifact struct {
	Key            string         `json:"key"`
	RepoName       string         `json:"repoName"`
	BuildName      string         `json:"buildName,omitempty"`
	BuildNumber    string         `json:"buildNumber,omitempty"`
	BuildTimestamp string         `json:"buildTimestamp,omitempty"`
	SHA256         string         `json:"sha256,omitempty"`
	Counts         SeverityCounts `json:"counts"`
}

// IsLatestTag reports whether the artifact key addresses a floating
// "latest" tag rather than a pinned version.
func (a DeployedArtifact) IsLatestTag() bool {
	return strings.HasSuffix(a.Key, ":latest")
}

// timestamp parses the build timestamp, reporting false when the artifact
// carries none or an unusable value.
func (a DeployedArtifact) timestamp() (int64, bool) {
	ts, err := strconv.ParseInt(strings.TrimSpace(a.BuildTimestamp), 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// DependenciesVulnerabilities collects the deployed artifacts attributed to
// one repository together with their vulnerability counts.
type DependenciesVulnerabilities struct {
	Artifacts []DeployedArtifact `json:"artifacts"`
}

// Append adds an attributed artifact.
func (d *DependenciesVulnerabilities) Append(artifact DeployedArtifact) {
	d.Artifacts = append(d.Artifacts, artifact)
}

// SumCounts sums counts across every artifact regardless of build or
// recency. It double counts superseded builds and exists for diagnostics;
// reporting goes through PolicyCounts.
func (d *DependenciesVulnerabilities) SumCounts() SeverityCounts {
	var totals SeverityCounts
	if d == nil {
		return totals
	}
	for _, a := range d.Artifacts {
		totals.Add(a.Counts)
	}
	return totals
}

// latestFor returns the artifact with the maximum build timestamp among
// those whose normalized build name equals name. Artifacts without a
// usable timestamp never win.
func (d *DependenciesVulnerabilities) latestFor(name string) (DeployedArtifact, bool) {
	want := normalizeBuildKey(name)
	var (
		best   DeployedArtifact
		bestTS int64
		found  bool
	)
	for _, a := range d.Artifacts {
		if normalizeBuildKey(a.BuildName) != want {
			continue
		}
		ts, ok := a.timestamp()
		if !ok {
			continue
		}
		if !found || ts > bestTS {
			best, bestTS, found = a, ts, true
		}
	}
	return best, found
}

// PolicyCounts computes repository-level severity totals under the publish
// policy:
//   - mono: the latest artifact of the single matched build name.
//   - multi: the sum over each matched build name's own latest artifact.
//   - unknown: zero.
//
// Summing every historical artifact would double count superseded builds,
// so only each build's latest artifact participates.
func (d *DependenciesVulnerabilities) PolicyCounts(publishType PublishType, buildNames []string) SeverityCounts {
	var totals SeverityCounts
	if d == nil || len(buildNames) == 0 {
		return totals
	}
	switch publishType {
	case PublishMono:
		if latest, ok := d.latestFor(buildNames[0]); ok {
			totals.Add(latest.Counts)
		}
	case PublishMulti:
		for _, name := range buildNames {
			if latest, ok := d.latestFor(name); ok {
				totals.Add(latest.Counts)
			}
		}
	}
	return totals
}

// normalizeBuildKey makes build names comparable across the CI listing and
// artifact properties, which disagree on case and padding.
func normalizeBuildKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Repository is a product source repository accumulating its matched builds
// and attributed vulnerabilities over one run.
type Repository struct {
	Name          string                       `json:"name"`
	DefaultBranch string                       `json:"defaultBranch,omitempty"`
	Builds        map[string]BuildRecord       `json:"builds,omitempty"`
	Vulns         *DependenciesVulnerabilities `json:"vulnerabilities,omitempty"`
}

// NewRepository returns an empty repository aggregate.
func NewRepository(name, defaultBranch string) *Repository {
	return &Repository{
		Name:          name,
		DefaultBranch: defaultBranch,
		Builds:        make(map[string]BuildRecord),
		Vulns:         &DependenciesVulnerabilities{},
	}
}

// AttachBuild records a build matched to this repository. A build name maps
// to at most one repository, so re-attaching a name replaces the earlier
// record.
func (r *Repository) AttachBuild(rec BuildRecord) {
	if r.Builds == nil {
		r.Builds = make(map[string]BuildRecord)
	}
	r.Builds[rec.Name] = rec
}

// BuildNames returns the matched build names in sorted order.
func (r *Repository) BuildNames() []string {
	names := make([]string, 0, len(r.Builds))
	for name := range r.Builds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PublishType derives the publish policy from how many distinct builds
// were matched to the repository.
func (r *Repository) PublishType() PublishType {
	switch len(r.Builds) {
	case 0:
		return PublishUnknown
	case 1:
		return PublishMono
	default:
		return PublishMulti
	}
}

// LatestBuild returns the most recently started of the matched builds.
func (r *Repository) LatestBuild() (BuildRecord, bool) {
	var (
		best  BuildRecord
		found bool
	)
	for _, rec := range r.Builds {
		if !found || rec.LastStarted > best.LastStarted ||
			(rec.LastStarted == best.LastStarted && rec.Name < best.Name) {
			best, found = rec, true
		}
	}
	return best, found
}

// SeverityTotals computes the repository's reportable totals under its
// publish policy.
func (r *Repository) SeverityTotals() SeverityCounts {
	return r.Vulns.PolicyCounts(r.PublishType(), r.BuildNames())
}
