package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vendo/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 2
)

// ErrRateLimited signals that the catalog service throttled the request.
// The retry policy treats it as transient; everything else is permanent.
var ErrRateLimited = errors.New("catalog rate limited")

// APIError is a non-rate-limit catalog API failure
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error %d on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// Client is an HTTP client for the external commerce catalog API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// NewClient creates a new catalog API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs a JSON request against the API. A 429 response maps to
// ErrRateLimited so callers can distinguish throttling from hard failures.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Msg("Catalog API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s", ErrRateLimited, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   path,
		}
	}

	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// FindProductByHandle looks a product up by its handle. Returns nil with
// no error when the handle is absent.
func (c *Client) FindProductByHandle(ctx context.Context, handle string) (*models.CatalogProduct, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var result struct {
		Products []models.CatalogProduct `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/products", params, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Products) == 0 {
		return nil, nil
	}
	return &result.Products[0], nil
}

// CreateProduct creates a product with its single variant.
func (c *Client) CreateProduct(ctx context.Context, preview *models.CatalogPreview) (*models.CatalogProduct, error) {
	var result struct {
		Product models.CatalogProduct `json:"product"`
	}
	if err := c.do(ctx, http.MethodPost, "/products", nil, preview, &result); err != nil {
		return nil, err
	}
	return &result.Product, nil
}

// UpdateProduct updates a product's core fields.
func (c *Client) UpdateProduct(ctx context.Context, productID string, preview *models.CatalogPreview) error {
	return c.do(ctx, http.MethodPut, "/products/"+productID, nil, preview, nil)
}

// ArchiveProduct archives a product.
func (c *Client) ArchiveProduct(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodPost, "/products/"+productID+"/archive", nil, nil, nil)
}

// ListMetafields returns all metafields attached to a product.
func (c *Client) ListMetafields(ctx context.Context, productID string) ([]models.Metafield, error) {
	var result struct {
		Metafields []models.Metafield `json:"metafields"`
	}
	if err := c.do(ctx, http.MethodGet, "/products/"+productID+"/metafields", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Metafields, nil
}

// UpsertMetafield creates or replaces one metafield on a product.
func (c *Client) UpsertMetafield(ctx context.Context, productID string, field models.Metafield) error {
	return c.do(ctx, http.MethodPut, "/products/"+productID+"/metafields", nil, field, nil)
}

// UpdateVariant updates a variant's sku, price and weight.
func (c *Client) UpdateVariant(ctx context.Context, variantID string, variant models.PreviewVariant) error {
	return c.do(ctx, http.MethodPut, "/variants/"+variantID, nil, variant, nil)
}

// CreateImage attaches an image URL to a product.
func (c *Client) CreateImage(ctx context.Context, productID string, imageURL string) error {
	payload := map[string]string{"src": imageURL}
	return c.do(ctx, http.MethodPost, "/products/"+productID+"/images", nil, payload, nil)
}
