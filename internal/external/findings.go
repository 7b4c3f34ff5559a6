package external

import (
	"sort"

	"github.com/arcwatch/attribution-hub/pkg/correlate"
)

// FindingCounts is the per-severity tally carried on one finding.
type FindingCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
}

// ArtifactFinding is one entry of the vulnerability feed.
type ArtifactFinding struct {
	Vulnerabilities FindingCounts `json:"vulnerabilities"`
	UpdatedAt       string        `json:"updated_at,omitempty"`
}

// FindingsResponse is the vulnerability feed payload: findings keyed by the
// artifact key that exhibits them.
type FindingsResponse map[string]ArtifactFinding

// MapFindings converts the feed payload into engine findings. Entries come
// back sorted by artifact key so processing order is reproducible.
func MapFindings(resp FindingsResponse) []correlate.Finding {
	keys := make([]string, 0, len(resp))
	for key := range resp {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	findings := make([]correlate.Finding, 0, len(keys))
	for _, key := range keys {
		entry := resp[key]
		findings = append(findings, correlate.Finding{
			ArtifactKey: key,
			UpdatedAt:   entry.UpdatedAt,
			Counts: correlate.SeverityCounts{
				Critical: entry.Vulnerabilities.Critical,
				High:     entry.Vulnerabilities.High,
				Medium:   entry.Vulnerabilities.Medium,
				Low:      entry.Vulnerabilities.Low,
				Unknown:  entry.Vulnerabilities.Unknown,
			},
		})
	}
	return findings
}
