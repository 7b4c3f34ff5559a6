// Package catalog fetches repository inventory and dependency findings from
// the platform catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/arcwatch/attribution-hub/internal/external"
	"github.com/arcwatch/attribution-hub/pkg/correlate"
	"github.com/arcwatch/attribution-hub/pkg/types"
)

const (
	// pageLimit is the repository page size requested from the catalog.
	pageLimit = 1000
	// maxRetries bounds the retry attempts per request.
	maxRetries = 3
)

// Client talks to one catalog instance with a fixed access token.
type Client struct {
	httpClient types.HTTPClientInterface
	logger     types.Logger
	base       string
	token      string
}

// NewClient creates a catalog Client. A nil httpClient falls back to an
// oauth2 static-token client.
func NewClient(ctx context.Context, base, token string, httpClient types.HTTPClientInterface, logger types.Logger) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if httpClient == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		base:       strings.TrimRight(base, "/"),
		token:      token,
	}, nil
}

// FetchRepositories returns every repository of the given SCM type and
// organization, walking the catalog's paginated listing until the reported
// page count is exhausted or a page comes back empty.
func (c *Client) FetchRepositories(ctx context.Context, scmType, orgID string) ([]*correlate.Repository, error) {
	if scmType == "" {
		return nil, fmt.Errorf("repository type cannot be empty")
	}
	if orgID == "" {
		return nil, fmt.Errorf("organization id cannot be empty")
	}

	var records []external.RepositoryRecord
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("type", scmType)
		params.Set("organization_id", orgID)
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("page", strconv.Itoa(page))

		data, err := c.get(ctx, fmt.Sprintf("%s/repositories?%s", c.base, params.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch repositories page %d: %w", page, err)
		}
		var wire external.RepositoriesPage
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("error parsing JSON response: %w", err)
		}
		records = append(records, wire.Repositories...)
		c.logger.Debug("Fetched repository page",
			zap.Int("page", page), zap.Int("count", len(wire.Repositories)))
		if page >= wire.Pagination.Pages || len(wire.Repositories) == 0 {
			break
		}
	}

	repos := external.MapRepositories(records)
	c.logger.Info("Fetched repositories from catalog",
		zap.String("type", scmType), zap.String("organization", orgID), zap.Int("count", len(repos)))
	return repos, nil
}

// FetchFindings returns the organization's dependency findings keyed by
// deployed artifact, mapped to domain findings in key order.
func (c *Client) FetchFindings(ctx context.Context, orgID string) ([]correlate.Finding, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization id cannot be empty")
	}

	params := url.Values{}
	params.Set("organization_id", orgID)
	data, err := c.get(ctx, fmt.Sprintf("%s/remediation/jfrog/vulnerabilities?%s", c.base, params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch findings: %w", err)
	}
	var wire external.FindingsResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("error parsing JSON response: %w", err)
	}
	findings := external.MapFindings(wire)
	c.logger.Info("Fetched dependency findings from catalog",
		zap.String("organization", orgID), zap.Int("count", len(findings)))
	return findings, nil
}

// TestConnection probes the catalog with a single-row repository listing.
func (c *Client) TestConnection(ctx context.Context, scmType, orgID string) error {
	params := url.Values{}
	params.Set("type", scmType)
	params.Set("organization_id", orgID)
	params.Set("limit", "1")
	if _, err := c.get(ctx, fmt.Sprintf("%s/repositories?%s", c.base, params.Encode())); err != nil {
		return fmt.Errorf("catalog connection test failed: %w", err)
	}
	return nil
}

// get issues one GET with exponential-backoff retry. Transport errors, 429,
// and 5xx are retried; any other non-200 status fails immediately.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("error creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error making request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("retryable status code: %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response body: %w", err)
		}
		body = data
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expo, maxRetries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
