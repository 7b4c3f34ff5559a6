package external

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arcwatch/attribution-hub/pkg/correlate"
)

// TestFindingsDeserialization checks the vulnerability feed wire shape.
func TestFindingsDeserialization(t *testing.T) {
	data, err := os.ReadFile("testdata/findings.json")
	if err != nil {
		t.Fatalf("Failed to read JSON file: %s", err)
	}

	var resp FindingsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Failed to deserialize JSON data: %s", err)
	}

	if len(resp) != 3 {
		t.Fatalf("Expected 3 findings, got %d", len(resp))
	}
	entry, ok := resp["alert-service-local/staging/alert-service/3f9ab2c1/manifest.json"]
	if !ok {
		t.Fatal("Expected the alert-service artifact key to be present")
	}
	if entry.Vulnerabilities.Critical != 4 || entry.Vulnerabilities.High != 12 {
		t.Errorf("Expected critical=4 high=12, got %+v", entry.Vulnerabilities)
	}
	if entry.UpdatedAt == "" {
		t.Error("Expected updated_at to be set")
	}
}

func TestMapFindings(t *testing.T) {
	resp := FindingsResponse{
		"zeta-local/a/manifest.json": {
			Vulnerabilities: FindingCounts{High: 2},
			UpdatedAt:       "2026-08-19T22:10:55Z",
		},
		"alpha-local/b/manifest.json": {
			Vulnerabilities: FindingCounts{Critical: 1, Low: 3},
		},
	}

	got := MapFindings(resp)
	want := []correlate.Finding{
		{
			ArtifactKey: "alpha-local/b/manifest.json",
			Counts:      correlate.SeverityCounts{Critical: 1, Low: 3},
		},
		{
			ArtifactKey: "zeta-local/a/manifest.json",
			Counts:      correlate.SeverityCounts{High: 2},
			UpdatedAt:   "2026-08-19T22:10:55Z",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MapFindings() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapFindingsEmpty(t *testing.T) {
	if got := MapFindings(nil); len(got) != 0 {
		t.Errorf("MapFindings(nil) = %d findings, want 0", len(got))
	}
}
