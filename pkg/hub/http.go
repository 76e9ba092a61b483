package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	gocache "github.com/patrickmn/go-cache"
)

// HTTPClient talks to the hub's REST API. Revisions are memoized for a
// few seconds so planning passes do not hammer the hub; the TTL is
// short enough that a revision change is never masked for long.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client

	revisions *gocache.Cache
}

// HTTPClientConfig holds hub client configuration
type HTTPClientConfig struct {
	Endpoint    string
	Token       string
	Timeout     time.Duration
	RevisionTTL time.Duration
}

// NewHTTPClient creates a hub client against the given endpoint
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.RevisionTTL
	if ttl == 0 {
		ttl = 5 * time.Second
	}
	return &HTTPClient{
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		client:    &http.Client{Timeout: timeout},
		revisions: gocache.New(ttl, 2*ttl),
	}
}

// getJSON performs an authenticated GET and decodes the JSON body
func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewClientConnectionError(fmt.Sprintf("hub request failed: %v", err), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.NewDatasetNotFoundError("dataset not found on the hub", nil)
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewCodedError(types.CodeExternalUnauthenticated, http.StatusUnauthorized, "hub rejected the request: unauthenticated", nil)
	case resp.StatusCode == http.StatusForbidden:
		return types.NewCodedError(types.CodeExternalAuthenticated, http.StatusNotFound, "hub rejected the credentials", nil)
	case resp.StatusCode >= 500:
		return types.NewClientConnectionError(fmt.Sprintf("hub returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("hub returned unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode hub response: %w", err)
	}
	return nil
}

// Revision returns the dataset's current commit hash, memoized for the
// configured TTL
func (c *HTTPClient) Revision(ctx context.Context, dataset string) (string, error) {
	if cached, found := c.revisions.Get(dataset); found {
		return cached.(string), nil
	}

	info, err := c.Info(ctx, dataset)
	if err != nil {
		return "", err
	}
	if info.Revision == "" {
		return "", types.NewNoGitRevisionError(fmt.Sprintf("no git revision for dataset %s", dataset))
	}
	c.revisions.SetDefault(dataset, info.Revision)
	return info.Revision, nil
}

// IsSupported reports whether the dataset can be processed
func (c *HTTPClient) IsSupported(ctx context.Context, dataset string) (bool, error) {
	info, err := c.Info(ctx, dataset)
	if err != nil {
		coded := types.AsCoded(err)
		if coded.Code == types.CodeDatasetNotFound || coded.Code == types.CodeExternalAuthenticated {
			return false, nil
		}
		return false, err
	}
	return !info.Private && !info.Disabled, nil
}

// Info returns dataset metadata
func (c *HTTPClient) Info(ctx context.Context, dataset string) (*DatasetInfo, error) {
	var info DatasetInfo
	if err := c.getJSON(ctx, "/api/datasets/"+dataset, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ConfigNames lists the dataset's configurations
func (c *HTTPClient) ConfigNames(ctx context.Context, dataset string) ([]string, error) {
	var payload struct {
		Configs []string `json:"configs"`
	}
	if err := c.getJSON(ctx, "/api/datasets/"+dataset+"/configs", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Configs, nil
}

// SplitNames lists the splits of one configuration
func (c *HTTPClient) SplitNames(ctx context.Context, dataset, config string) ([]string, error) {
	var payload struct {
		Splits []string `json:"splits"`
	}
	query := url.Values{"config": {config}}
	if err := c.getJSON(ctx, "/api/datasets/"+dataset+"/splits", query, &payload); err != nil {
		return nil, err
	}
	return payload.Splits, nil
}

// FirstRows returns the features and up to maxRows rows of a split
func (c *HTTPClient) FirstRows(ctx context.Context, dataset, config, split string, maxRows int) ([]Feature, []Row, error) {
	var payload struct {
		Features []Feature `json:"features"`
		Rows     []Row     `json:"rows"`
	}
	query := url.Values{
		"config": {config},
		"split":  {split},
		"limit":  {strconv.Itoa(maxRows)},
	}
	if err := c.getJSON(ctx, "/api/datasets/"+dataset+"/rows", query, &payload); err != nil {
		return nil, nil, err
	}
	return payload.Features, payload.Rows, nil
}

// SplitStats returns the row and byte counts of one split
func (c *HTTPClient) SplitStats(ctx context.Context, dataset, config, split string) (*SplitStats, error) {
	var stats SplitStats
	query := url.Values{
		"config": {config},
		"split":  {split},
	}
	if err := c.getJSON(ctx, "/api/datasets/"+dataset+"/stats", query, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
