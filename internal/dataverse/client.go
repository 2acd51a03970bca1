// Package dataverse talks to the Dataverse Web API (OData v4). It implements
// the auditing.MetadataProvider and auditing.Mutator collaborators on top of a
// small JSON client that authenticates through an oauth2 transport, throttles
// itself with a token bucket and records request metrics.
package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/3mpowered/dataverse-convenience/internal/telemetry"
)

const defaultAPIVersion = "9.2"

// Options configures a Client.
type Options struct {
	// URL is the environment root, e.g. https://contoso.crm4.dynamics.com
	URL        string
	APIVersion string
	// HTTPClient must add authorization; see azuread.Provider.Client.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Limiter overrides the local token bucket built from RequestsPerSecond.
	Limiter Limiter
	// RequestsPerSecond <= 0 disables client-side throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client is a minimal Web API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    Limiter
}

// NewClient creates a Client for one environment.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid environment url %q", opts.URL)
	}
	version := opts.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.URL, "/") + "/api/data/v" + version + "/",
		httpClient: httpClient,
		timeout:    opts.Timeout,
		limiter:    opts.Limiter,
	}
	if c.limiter == nil {
		c.limiter = NewLocalLimiter(opts.RequestsPerSecond, opts.Burst)
	}
	return c, nil
}

// BaseURL returns the Web API root including the version segment.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one Web API call. path is relative to the base URL unless
// it is absolute (nextLink).
type request struct {
	method  string
	path    string
	query   [][2]string
	headers map[string]string
	body    any
}

// do executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := req.path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}
	if len(req.query) > 0 {
		target += "?" + encodeQuery(req.query)
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("OData-MaxVersion", "4.0")
	httpReq.Header.Set("OData-Version", "4.0")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	telemetry.APIRequestDuration.WithLabelValues(req.method).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.APIRequestsTotal.WithLabelValues(req.method, "error").Inc()
		return fmt.Errorf("dataverse: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	telemetry.APIRequestsTotal.WithLabelValues(req.method, strconv.Itoa(resp.StatusCode)).Inc()
	slog.Debug("dataverse: request", "method", req.method, "path", req.path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dataverse: failed to decode %s response: %w", req.path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Message == "" {
		return newAPIError(resp.StatusCode, "", strings.TrimSpace(string(data)))
	}
	return newAPIError(resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
}

// collection is the OData page envelope.
type collection[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// list fetches every page of a collection query.
func list[T any](ctx context.Context, c *Client, path string, query [][2]string) ([]T, error) {
	var items []T
	req := request{method: http.MethodGet, path: path, query: query}
	for {
		var page collection[T]
		if err := c.do(ctx, req, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		if page.NextLink == "" {
			return items, nil
		}
		req = request{method: http.MethodGet, path: page.NextLink}
	}
}

// encodeQuery percent-encodes OData system query options. Spaces become %20
// and the leading $ of option names is kept literal.
func encodeQuery(query [][2]string) string {
	parts := make([]string, 0, len(query))
	for _, kv := range query {
		parts = append(parts, kv[0]+"="+strings.ReplaceAll(url.QueryEscape(kv[1]), "+", "%20"))
	}
	return strings.Join(parts, "&")
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// queryFrom converts options in a stable order; used for ad-hoc option maps.
func queryFrom(options map[string]string) [][2]string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	query := make([][2]string, 0, len(keys))
	for _, k := range keys {
		query = append(query, [2]string{k, options[k]})
	}
	return query
}

// WhoAmI identifies the calling application user.
type WhoAmI struct {
	UserID         string `json:"UserId"`
	BusinessUnitID string `json:"BusinessUnitId"`
	OrganizationID string `json:"OrganizationId"`
}

// WhoAmI calls the WhoAmI function; used to test a connection.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	var who WhoAmI
	if err := c.do(ctx, request{method: http.MethodGet, path: "WhoAmI"}, &who); err != nil {
		return nil, err
	}
	return &who, nil
}
