// Package report renders a correlation run as CSV, JSON, or a summary table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/arcwatch/attribution-hub/pkg/correlate"
)

// Row is one repository's line in the report.
type Row struct {
	Repository    string   `json:"repository"`
	PublishType   string   `json:"publish_type"`
	Builds        []string `json:"builds,omitempty"`
	Critical      int      `json:"critical"`
	High          int      `json:"high"`
	Medium        int      `json:"medium"`
	Low           int      `json:"low"`
	Unknown       int      `json:"unknown"`
	ArtifactCount int      `json:"artifact_count"`
}

// BuildRows flattens a finished run into report rows, one per repository in
// name order.
func BuildRows(run *correlate.Context) []Row {
	if run == nil {
		return nil
	}
	repos := run.Repositories()
	rows := make([]Row, 0, len(repos))
	for _, repo := range repos {
		counts := repo.SeverityTotals()
		row := Row{
			Repository:  repo.Name,
			PublishType: string(repo.PublishType()),
			Builds:      repo.BuildNames(),
			Critical:    counts.Critical,
			High:        counts.High,
			Medium:      counts.Medium,
			Low:         counts.Low,
			Unknown:     counts.Unknown,
		}
		if repo.Vulns != nil {
			row.ArtifactCount = len(repo.Vulns.Artifacts)
		}
		rows = append(rows, row)
	}
	return rows
}

// Write renders rows in the given format.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatTable:
		return WriteTable(w, rows)
	default:
		return fmt.Errorf("invalid format %q, options: table|csv|json", format)
	}
}

// WriteCSV writes the rows as CSV, header first. Build names are joined with
// a semicolon so the cell survives comma splitting.
func WriteCSV(w io.Writer, rows []Row) error {
	csvWriter := csv.NewWriter(w)

	err := csvWriter.Write([]string{
		"Repository",
		"PublishType",
		"Builds",
		"Critical",
		"High",
		"Medium",
		"Low",
		"Unknown",
		"ArtifactCount",
	})
	if err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	for _, row := range rows {
		err := csvWriter.Write([]string{
			row.Repository,
			row.PublishType,
			strings.Join(row.Builds, ";"),
			strconv.Itoa(row.Critical),
			strconv.Itoa(row.High),
			strconv.Itoa(row.Medium),
			strconv.Itoa(row.Low),
			strconv.Itoa(row.Unknown),
			strconv.Itoa(row.ArtifactCount),
		})
		if err != nil {
			return fmt.Errorf("error writing csv record: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("error flushing csv writer: %w", err)
	}
	return nil
}

// WriteJSON writes the rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("error encoding JSON report: %w", err)
	}
	return nil
}

// WriteTable renders a summary table with a totals footer.
func WriteTable(w io.Writer, rows []Row) error {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Repository", "Publish", "Builds", "Critical", "High", "Medium", "Low", "Unknown", "Artifacts"})

	var totals correlate.SeverityCounts
	artifacts := 0
	for _, row := range rows {
		tw.AppendRow(table.Row{
			row.Repository,
			row.PublishType,
			strings.Join(row.Builds, ", "),
			row.Critical,
			row.High,
			row.Medium,
			row.Low,
			row.Unknown,
			row.ArtifactCount,
		})
		totals.Add(correlate.SeverityCounts{
			Critical: row.Critical,
			High:     row.High,
			Medium:   row.Medium,
			Low:      row.Low,
			Unknown:  row.Unknown,
		})
		artifacts += row.ArtifactCount
	}
	tw.AppendFooter(table.Row{"TOTAL", "", "", totals.Critical, totals.High, totals.Medium, totals.Low, totals.Unknown, artifacts})

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return fmt.Errorf("error writing table: %w", err)
	}
	return nil
}
