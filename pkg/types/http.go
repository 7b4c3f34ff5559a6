package types

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPClientInterface is the transport seam the artifact-store and catalog
// clients send their requests through. Tests substitute it with canned
// responses.
type HTTPClientInterface interface {
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPClient is the production HTTPClientInterface over a standard
// http.Client.
type RealHTTPClient struct {
	Client *http.Client
}

// NewRealHTTPClient creates a RealHTTPClient with a default 10 second timeout.
func NewRealHTTPClient() *RealHTTPClient {
	return NewRealHTTPClientWithTimeout(10 * time.Second)
}

// NewRealHTTPClientWithTimeout creates a RealHTTPClient with the given per-call timeout.
func NewRealHTTPClientWithTimeout(timeout time.Duration) *RealHTTPClient {
	return &RealHTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do sends the request with the underlying http.Client and wraps any
// transport error.
func (c *RealHTTPClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to do request: %w", err)
	}
	return resp, nil
}
