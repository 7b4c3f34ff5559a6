// Package artifactory is a thin REST client for the artifact store. It covers
// the project-scoped build endpoints, AQL artifact search, and the system
// endpoints used for diagnostics and version gating.
package artifactory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arcwatch/attribution-hub/pkg/artifact"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

// Property keys the CI pipeline attaches to build details.
const (
	propSourceRepo   = "buildInfo.env.SOURCE_REPO"
	propSourceBranch = "buildInfo.env.SOURCE_BRANCH"
)

// Client talks to one artifact-store instance with a fixed access token and
// project scope. It satisfies types.BuildClient and artifact.Searcher.
type Client struct {
	httpClient types.HTTPClientInterface
	limiter    *rate.Limiter
	logger     types.Logger
	base       string
	token      string
	project    string
}

var (
	_ types.BuildClient = (*Client)(nil)
	_ artifact.Searcher = (*Client)(nil)
)

// NewClient creates a Client for the given base URL, access token, and project.
// A nil httpClient falls back to a real client with a 30s per-call timeout.
func NewClient(base, token, project string, httpClient types.HTTPClientInterface, logger types.Logger) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if httpClient == nil {
		httpClient = types.NewRealHTTPClientWithTimeout(30 * time.Second)
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		logger:     logger,
		base:       strings.TrimRight(base, "/"),
		token:      token,
		project:    project,
	}, nil
}

// buildListResponse is the wire shape of the project build listing.
type buildListResponse struct {
	Builds []struct {
		URI         string `json:"uri"`
		LastStarted string `json:"lastStarted"`
	} `json:"builds"`
}

// buildRunsResponse is the wire shape of the numbered runs of one build.
type buildRunsResponse struct {
	BuildsNumbers []struct {
		URI     string `json:"uri"`
		Started string `json:"started"`
	} `json:"buildsNumbers"`
}

// buildDetailResponse is the wire shape of a single run's detail blob.
type buildDetailResponse struct {
	BuildInfo struct {
		Properties map[string]string `json:"properties"`
		Name       string            `json:"name"`
		Number     string            `json:"number"`
		Started    string            `json:"started"`
		URL        string            `json:"url"`
	} `json:"buildInfo"`
}

// aqlResponse is the wire shape of an AQL search result.
type aqlResponse struct {
	Results []struct {
		Repo       string `json:"repo"`
		Path       string `json:"path"`
		Name       string `json:"name"`
		Properties []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"properties"`
	} `json:"results"`
}

// systemVersionResponse is the wire shape of the system version endpoint.
type systemVersionResponse struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}

// ListBuilds returns every build known to the client's project. Listing URIs
// carry a leading slash that is stripped from the returned names.
func (c *Client) ListBuilds(ctx context.Context) ([]types.BuildEntry, error) {
	u := fmt.Sprintf("%s/artifactory/api/build?project=%s", c.base, url.QueryEscape(c.project))
	data, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	var wire buildListResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("error parsing JSON response: %w", err)
	}
	entries := make([]types.BuildEntry, 0, len(wire.Builds))
	for _, b := range wire.Builds {
		name := strings.TrimPrefix(b.URI, "/")
		if name == "" {
			continue
		}
		entries = append(entries, types.BuildEntry{Name: name, LastStarted: b.LastStarted})
	}
	c.logger.Debug("Listed project builds",
		zap.String("project", c.project), zap.Int("count", len(entries)))
	return entries, nil
}

// GetBuildRuns returns the numbered runs recorded for the named build.
func (c *Client) GetBuildRuns(ctx context.Context, name string) ([]types.BuildRun, error) {
	if name == "" {
		return nil, fmt.Errorf("build name cannot be empty")
	}
	u := fmt.Sprintf("%s/artifactory/api/build/%s?project=%s",
		c.base, url.PathEscape(name), url.QueryEscape(c.project))
	data, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs for build %q: %w", name, err)
	}
	var wire buildRunsResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("error parsing JSON response: %w", err)
	}
	runs := make([]types.BuildRun, 0, len(wire.BuildsNumbers))
	for _, r := range wire.BuildsNumbers {
		number := strings.TrimPrefix(r.URI, "/")
		if number == "" {
			continue
		}
		runs = append(runs, types.BuildRun{Number: number, Started: r.Started})
	}
	return runs, nil
}

// GetBuildDetail returns the detail blob for one run of a build, with the
// source repository and branch lifted out of the CI environment properties.
func (c *Client) GetBuildDetail(ctx context.Context, name, number string) (*types.BuildDetail, error) {
	if name == "" {
		return nil, fmt.Errorf("build name cannot be empty")
	}
	if number == "" {
		return nil, fmt.Errorf("build number cannot be empty")
	}
	u := fmt.Sprintf("%s/artifactory/api/build/%s/%s?project=%s",
		c.base, url.PathEscape(name), url.PathEscape(number), url.QueryEscape(c.project))
	data, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get detail for build %s/%s: %w", name, number, err)
	}
	var wire buildDetailResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("error parsing JSON response: %w", err)
	}
	info := wire.BuildInfo
	detail := &types.BuildDetail{
		Name:         info.Name,
		Number:       info.Number,
		Started:      info.Started,
		SourceRepo:   info.Properties[propSourceRepo],
		SourceBranch: info.Properties[propSourceBranch],
		JobURL:       info.URL,
	}
	if detail.Name == "" {
		detail.Name = name
	}
	if detail.Number == "" {
		detail.Number = number
	}
	return detail, nil
}

// SearchRepo returns the full artifact listing of a repository, properties
// included.
func (c *Client) SearchRepo(ctx context.Context, repo string) ([]artifact.Record, error) {
	if repo == "" {
		return nil, fmt.Errorf("repo cannot be empty")
	}
	query := fmt.Sprintf(`items.find({"repo": {"$eq": %q}, "type": "file"}).include("property")`, repo)
	return c.search(ctx, repo, query)
}

// SearchPairs returns only the records matching the given (path, name) pairs.
// An empty pair list is a no-op.
func (c *Client) SearchPairs(ctx context.Context, repo string, pairs []artifact.Pair) ([]artifact.Record, error) {
	if repo == "" {
		return nil, fmt.Errorf("repo cannot be empty")
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(pairs))
	for _, p := range pairs {
		clauses = append(clauses, fmt.Sprintf(`{"path": {"$eq": %q}, "name": {"$eq": %q}}`, p.Path, p.Name))
	}
	query := fmt.Sprintf(`items.find({"repo": {"$eq": %q}, "$or": [%s]}).include("property")`,
		repo, strings.Join(clauses, ", "))
	return c.search(ctx, repo, query)
}

func (c *Client) search(ctx context.Context, repo, query string) ([]artifact.Record, error) {
	data, err := c.do(ctx, http.MethodPost, c.base+"/artifactory/api/search/aql", "text/plain", strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search repository %q: %w", repo, err)
	}
	var wire aqlResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("error parsing JSON response: %w", err)
	}
	records := make([]artifact.Record, 0, len(wire.Results))
	for _, r := range wire.Results {
		rec := artifact.Record{Repo: r.Repo, Path: r.Path, Name: r.Name}
		for _, p := range r.Properties {
			rec.Properties = append(rec.Properties, artifact.Property{Key: p.Key, Value: p.Value})
		}
		records = append(records, rec)
	}
	c.logger.Debug("Queried artifact listing",
		zap.String("repo", repo), zap.Int("results", len(records)))
	return records, nil
}

// SystemVersion returns the server's reported version string.
func (c *Client) SystemVersion(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, c.base+"/artifactory/api/system/version", "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get system version: %w", err)
	}
	var wire systemVersionResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return "", fmt.Errorf("error parsing JSON response: %w", err)
	}
	if wire.Version == "" {
		return "", fmt.Errorf("version missing from response")
	}
	return wire.Version, nil
}

// Ping checks server reachability. The endpoint answers a bare "OK" when the
// server is healthy.
func (c *Client) Ping(ctx context.Context) error {
	data, err := c.do(ctx, http.MethodGet, c.base+"/artifactory/api/system/ping", "", nil)
	if err != nil {
		return fmt.Errorf("failed to ping server: %w", err)
	}
	if body := strings.TrimSpace(string(data)); body != "OK" {
		return fmt.Errorf("unexpected ping response: %q", body)
	}
	return nil
}

// do issues one rate-limited request and returns the decoded body. Responses
// are requested gzip-encoded; AQL listings compress an order of magnitude.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("error waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Encoding", "gzip")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return data, nil
}
