package correlate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func repoWithBuilds(names ...string) *Repository {
	repo := NewRepository("svc", "main")
	for _, n := range names {
		repo.AttachBuild(BuildRecord{Name: n, LastStarted: "2026-01-01T00:00:00.000+0000", Method: MatchMetadata})
	}
	return repo
}

func TestPublishTypeDerivation(t *testing.T) {
	tests := []struct {
		name   string
		builds []string
		want   PublishType
	}{
		{name: "no builds", builds: nil, want: PublishUnknown},
		{name: "single build", builds: []string{"svc"}, want: PublishMono},
		{name: "two builds", builds: []string{"svc-api", "svc-worker"}, want: PublishMulti},
		{name: "many builds", builds: []string{"a", "b", "c", "d", "e"}, want: PublishMulti},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repoWithBuilds(tt.builds...)
			if got := repo.PublishType(); got != tt.want {
				t.Errorf("PublishType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyCountsMono(t *testing.T) {
	repo := repoWithBuilds("b1")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "10", Counts: SeverityCounts{Critical: 2}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "20", Counts: SeverityCounts{Critical: 5}})

	got := repo.SeverityTotals()
	if got.Critical != 5 {
		t.Errorf("mono totals critical = %d, want 5 (latest by timestamp)", got.Critical)
	}
}

func TestPolicyCountsMulti(t *testing.T) {
	repo := repoWithBuilds("b1", "b2")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "10", Counts: SeverityCounts{Critical: 3}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b2", BuildTimestamp: "10", Counts: SeverityCounts{Critical: 4}})

	got := repo.SeverityTotals()
	if got.Critical != 7 {
		t.Errorf("multi totals critical = %d, want 7 (sum of per-build latest)", got.Critical)
	}
}

func TestPolicyCountsMultiSupersededBuildsExcluded(t *testing.T) {
	repo := repoWithBuilds("b1", "b2")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "10", Counts: SeverityCounts{High: 9}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "30", Counts: SeverityCounts{High: 1}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b2", BuildTimestamp: "20", Counts: SeverityCounts{High: 2}})

	got := repo.SeverityTotals()
	if got.High != 3 {
		t.Errorf("multi totals high = %d, want 3 (superseded b1 artifact ignored)", got.High)
	}
}

func TestPolicyCountsUnknownPublishType(t *testing.T) {
	repo := NewRepository("svc", "main")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "10", Counts: SeverityCounts{Critical: 3}})

	if got := repo.SeverityTotals(); got != (SeverityCounts{}) {
		t.Errorf("totals without matched builds = %+v, want zero", got)
	}
}

func TestPolicyCountsExcludesUnusableTimestamps(t *testing.T) {
	repo := repoWithBuilds("b1")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "", Counts: SeverityCounts{Critical: 9}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "not-a-number", Counts: SeverityCounts{Critical: 8}})
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", BuildTimestamp: "10", Counts: SeverityCounts{Critical: 2}})

	got := repo.SeverityTotals()
	if got.Critical != 2 {
		t.Errorf("totals critical = %d, want 2 (artifacts without usable timestamp excluded)", got.Critical)
	}
}

func TestPolicyCountsAllTimestampsUnusable(t *testing.T) {
	repo := repoWithBuilds("b1")
	repo.Vulns.Append(DeployedArtifact{BuildName: "b1", Counts: SeverityCounts{Critical: 9}})

	if got := repo.SeverityTotals(); got != (SeverityCounts{}) {
		t.Errorf("totals = %+v, want zero when no artifact has a usable timestamp", got)
	}
}

func TestPolicyCountsNormalizesBuildNames(t *testing.T) {
	repo := repoWithBuilds("alert-service")
	repo.Vulns.Append(DeployedArtifact{BuildName: "  Alert-Service ", BuildTimestamp: "10", Counts: SeverityCounts{Low: 4}})

	got := repo.SeverityTotals()
	if got.Low != 4 {
		t.Errorf("totals low = %d, want 4 (build name comparison is trimmed and case-insensitive)", got.Low)
	}
}

func TestSumCounts(t *testing.T) {
	vulns := &DependenciesVulnerabilities{}
	vulns.Append(DeployedArtifact{Counts: SeverityCounts{Critical: 1, High: 2}})
	vulns.Append(DeployedArtifact{Counts: SeverityCounts{Critical: 1, Medium: 3}})

	want := SeverityCounts{Critical: 2, High: 2, Medium: 3}
	if diff := cmp.Diff(want, vulns.SumCounts()); diff != "" {
		t.Errorf("SumCounts() mismatch (-want +got):\n%s", diff)
	}
}

func TestSeverityCountsAddAndTotal(t *testing.T) {
	counts := SeverityCounts{Critical: 1, High: 2}
	counts.Add(SeverityCounts{High: 1, Low: 5, Unknown: 2})

	want := SeverityCounts{Critical: 1, High: 3, Low: 5, Unknown: 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("Add() mismatch (-want +got):\n%s", diff)
	}
	if got := counts.Total(); got != 11 {
		t.Errorf("Total() = %d, want 11", got)
	}
}

func TestIsLatestTag(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{key: "cyberint-docker-virtual/alert-service:latest", want: true},
		{key: "cyberint-docker-local/staging/alert-service/3f9ab2/manifest.json", want: false},
		{key: "", want: false},
	}
	for _, tt := range tests {
		a := DeployedArtifact{Key: tt.key}
		if got := a.IsLatestTag(); got != tt.want {
			t.Errorf("IsLatestTag(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestBuildNamesSorted(t *testing.T) {
	repo := repoWithBuilds("zeta", "alpha", "mid")
	want := []string{"alpha", "mid", "zeta"}
	if diff := cmp.Diff(want, repo.BuildNames()); diff != "" {
		t.Errorf("BuildNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestBuild(t *testing.T) {
	repo := NewRepository("svc", "main")
	repo.AttachBuild(BuildRecord{Name: "old", LastStarted: "2026-01-01T00:00:00.000+0000"})
	repo.AttachBuild(BuildRecord{Name: "new", LastStarted: "2026-02-01T00:00:00.000+0000"})

	latest, ok := repo.LatestBuild()
	if !ok {
		t.Fatal("LatestBuild() reported no builds")
	}
	if latest.Name != "new" {
		t.Errorf("LatestBuild().Name = %q, want %q", latest.Name, "new")
	}
}

func TestLatestBuildEmpty(t *testing.T) {
	repo := NewRepository("svc", "main")
	if _, ok := repo.LatestBuild(); ok {
		t.Error("LatestBuild() reported a build for an empty repository")
	}
}

func TestAttachBuildReplacesSameName(t *testing.T) {
	repo := NewRepository("svc", "main")
	repo.AttachBuild(BuildRecord{Name: "b1", LastStarted: "2026-01-01T00:00:00.000+0000", Method: MatchLongestPrefix})
	repo.AttachBuild(BuildRecord{Name: "b1", LastStarted: "2026-02-01T00:00:00.000+0000", Method: MatchMetadata})

	if got := repo.PublishType(); got != PublishMono {
		t.Errorf("PublishType() = %q, want %q after re-attaching the same build name", got, PublishMono)
	}
	if got := repo.Builds["b1"].Method; got != MatchMetadata {
		t.Errorf("Builds[b1].Method = %q, want %q", got, MatchMetadata)
	}
}
