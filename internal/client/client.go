package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vyrodovalexey/resourcesync/internal/api"
	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/query"
	"github.com/vyrodovalexey/resourcesync/internal/resource"
)

const resourcesPath = "/api/resources"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to the resource API. Reads go through a query.Client so
// repeated reads are served from cache and concurrent ones share a request.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *breaker
	logger     observability.Logger
	cache      *query.Client
	cacheOpts  []query.Option
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCacheOptions passes options to the query.Client created by New.
func WithCacheOptions(opts ...query.Option) Option {
	return func(c *Client) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// New creates a client for cfg.BaseURL.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = config.DefaultClientBaseURL
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", base)
	}

	c := &Client{
		baseURL: u,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: requestTimeout(cfg)}
	}
	c.breaker = newBreaker("resource-api", cfg.CircuitBreaker, c.logger)

	cacheOpts := append([]query.Option{query.WithLogger(c.logger)}, c.cacheOpts...)
	c.cache = query.New(c.Fetch, cacheOpts...)

	c.logger.Debug("resource client initialized",
		observability.String("baseURL", u.String()),
		observability.String("circuitBreaker", c.breaker.state()),
	)
	return c, nil
}

// Cache returns the query client backing the reads.
func (c *Client) Cache() *query.Client {
	return c.cache
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.state()
}

// Close stops the cache.
func (c *Client) Close() error {
	return c.cache.Close()
}

// ListKey returns the cache key of a list read.
func ListKey(params resource.ListParams) query.Key {
	params = params.Normalize()
	return query.KeyWith(resource.TagList,
		"page", strconv.Itoa(params.Page),
		"limit", strconv.Itoa(params.Limit),
	)
}

// ItemKey returns the cache key of a by-id read.
func ItemKey(id string) query.Key {
	return query.KeyWith(resource.TagItem, "id", id)
}

// Fetch loads key from the API. It is the fetch function of the cache.
func (c *Client) Fetch(ctx context.Context, key query.Key) (any, error) {
	switch key.Tag {
	case resource.TagList:
		params, err := listParamsFromKey(key)
		if err != nil {
			return nil, query.Permanent(err)
		}
		return c.ListResources(ctx, params)
	case resource.TagItem:
		return c.GetResource(ctx, key.Filters["id"])
	default:
		return nil, query.Permanent(fmt.Errorf("unknown resource tag %q", key.Tag))
	}
}

// Resources returns the list query for params.
func (c *Client) Resources(params resource.ListParams, opts ...query.QueryOption) *query.Query[resource.ListResponse] {
	return query.NewQuery[resource.ListResponse](c.cache, ListKey(params),
		func(ctx context.Context, key query.Key) (resource.ListResponse, error) {
			p, err := listParamsFromKey(key)
			if err != nil {
				return resource.ListResponse{}, query.Permanent(err)
			}
			return c.ListResources(ctx, p)
		}, opts...)
}

// Resource returns the by-id query. It is disabled when id is empty.
func (c *Client) Resource(id string, opts ...query.QueryOption) *query.Query[resource.Resource] {
	opts = append([]query.QueryOption{query.WithEnabled(id != "")}, opts...)
	return query.NewQuery[resource.Resource](c.cache, ItemKey(id),
		func(ctx context.Context, key query.Key) (resource.Resource, error) {
			return c.GetResource(ctx, key.Filters["id"])
		}, opts...)
}

// CreateResource returns the create mutation. A successful create marks
// every cached list stale.
func (c *Client) CreateResource() *query.Mutation[resource.CreateInput, resource.Resource] {
	return query.NewMutation[resource.CreateInput, resource.Resource](c.cache, c.PostResource, resource.TagList)
}

// ListResources requests one page of resources, bypassing the cache.
func (c *Client) ListResources(ctx context.Context, params resource.ListParams) (resource.ListResponse, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var out resource.ListResponse
	err := c.do(ctx, http.MethodGet, resourcesPath, q, nil, &out)
	return out, err
}

// GetResource requests one resource, bypassing the cache. A 404 is
// reported as query.ErrNotFound.
func (c *Client) GetResource(ctx context.Context, id string) (resource.Resource, error) {
	if id == "" {
		return resource.Resource{}, query.Permanent(errors.New("resource id is required"))
	}

	var out resource.Resource
	err := c.do(ctx, http.MethodGet, resourcesPath+"/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// PostResource creates a resource, bypassing the cache. Invalid input is
// reported as *api.ValidationError.
func (c *Client) PostResource(ctx context.Context, in resource.CreateInput) (resource.Resource, error) {
	var out resource.Resource
	err := c.do(ctx, http.MethodPost, resourcesPath, nil, in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return query.Permanent(fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	_, err := execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, u.String(), reader, out)
	})
	if errors.Is(err, ErrCircuitOpen) {
		c.logger.Warn("circuit breaker open",
			observability.String("method", method),
			observability.String("path", path),
		)
		return query.Permanent(err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, target string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return query.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := observability.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, target, err)
		}
		return nil
	}

	return c.statusError(method, target, resp)
}

func (c *Client) statusError(method, target string, resp *http.Response) error {
	var body api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body)

	se := &StatusError{
		Method:  method,
		URL:     target,
		Code:    resp.StatusCode,
		Message: body.Error,
	}

	c.logger.Debug("resource API error response",
		observability.String("method", method),
		observability.String("url", target),
		observability.Int("status", resp.StatusCode),
		observability.String("error", body.Error),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", query.ErrNotFound, se)
	case resp.StatusCode == http.StatusBadRequest && len(body.Details) > 0:
		return query.Permanent(fmt.Errorf("%w: %w", &api.ValidationError{Details: body.Details}, se))
	case resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests:
		return query.Permanent(se)
	default:
		return se
	}
}

func listParamsFromKey(key query.Key) (resource.ListParams, error) {
	var params resource.ListParams
	for name, dst := range map[string]*int{"page": &params.Page, "limit": &params.Limit} {
		raw, ok := key.Filters[name]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, fmt.Errorf("invalid %s filter %q: %w", name, raw, err)
		}
		*dst = n
	}
	return params, nil
}
