package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestE2ECorrelateFunctionality(t *testing.T) {
	if os.Getenv("integration") != "true" {
		t.Skip("Skipping integration test")
	}
	artifactoryURL := os.Getenv("ARTIFACTORY_URL")
	catalogURL := os.Getenv("CATALOG_URL")
	product := os.Getenv("E2E_PRODUCT")
	project := os.Getenv("E2E_PROJECT")
	scmType := os.Getenv("E2E_SCM_TYPE")
	orgID := os.Getenv("E2E_ORG_ID")
	if artifactoryURL == "" || catalogURL == "" || product == "" || orgID == "" {
		t.Fatalf("ARTIFACTORY_URL, CATALOG_URL, E2E_PRODUCT and E2E_ORG_ID must be set")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "products.yaml")
	catalogYAML := fmt.Sprintf(`artifactory_url: %s
catalog_url: %s
cache_dir: %s
products:
  - name: %s
    project: %s
    scm_type: %s
    organization_id: %s
`, artifactoryURL, catalogURL, filepath.Join(dir, "cache"), product, project, scmType, orgID)
	if err := os.WriteFile(configPath, []byte(catalogYAML), 0o600); err != nil {
		t.Fatalf("Error writing product catalog: %v", err)
	}

	outputPath := filepath.Join(dir, "report.csv")

	savedFormat := outputFormat
	defer func() { outputFormat = savedFormat }()

	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{
		"--config", configPath,
		"--product", product,
		"--output-file", outputPath,
		"--output-format", "csv",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Error running correlation: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Error reading report: %v", err)
	}
	combinedCSV := string(data)

	// Verify the CSV output
	if len(combinedCSV) == 0 {
		t.Fatalf("CSV output is empty")
	}

	// make sure the header only exists in the first line
	lines := strings.Split(combinedCSV, "\n")
	if slices.Contains(lines[1:], lines[0]) {
		t.Error("the header line appears more than once")
	}
}
