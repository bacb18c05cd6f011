package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fillesume/storefront/internal/platform/config"
	"github.com/fillesume/storefront/internal/platform/observability"
)

const (
	defaultTimeout    = 8 * time.Second
	defaultAPIVersion = "2023-10"
	tokenHeader       = "X-Shopify-Storefront-Access-Token"
	maxErrorBody      = 4 << 10
	maxResponseBody   = 4 << 20
)

var (
	// ErrProductNotFound indicates the product does not exist in the backend or the demo catalog.
	ErrProductNotFound = errors.New("commerce: product not found")
	// ErrNotConfigured indicates the client has no domain or access token.
	ErrNotConfigured = errors.New("commerce: backend not configured")
	errGraphQL       = errors.New("commerce: graphql error")
	errEmptyData     = errors.New("commerce: empty data envelope")
)

// Source tells the caller whether data came from the backend or the demo catalog.
type Source string

const (
	SourceBackend Source = "commerce"
	SourceDemo    Source = "demo"
)

var fallbackCounter = observability.NewCounter("storefront.commerce.fallbacks", "Catalog reads served from the demo catalog")

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithEndpoint overrides the GraphQL endpoint derived from the shop domain.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAssetURL resolves the demo catalog's relative image paths.
func WithAssetURL(resolve func(ctx context.Context, path string) string) Option {
	return func(c *Client) {
		if resolve != nil {
			c.assetURL = resolve
		}
	}
}

// Client talks to the storefront GraphQL API and degrades to the demo catalog on reads.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	logger   func(context.Context, string, map[string]any)
	assetURL func(context.Context, string) string
}

// NewClient builds a client for the configured shop. Without a domain or token every
// read is served from the demo catalog and checkout reports ErrNotConfigured.
func NewClient(cfg config.CommerceConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	c := &Client{
		token:  strings.TrimSpace(cfg.Token),
		http:   &http.Client{Timeout: timeout},
		logger: func(context.Context, string, map[string]any) {},
		assetURL: func(_ context.Context, path string) string {
			return "/" + strings.TrimLeft(path, "/")
		},
	}
	if domain := strings.TrimSpace(cfg.Domain); domain != "" {
		c.endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", domain, version)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether backend calls will be attempted.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != "" && c.token != ""
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("commerce: status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&envelope); err != nil {
		return fmt.Errorf("commerce: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%w: %s", errGraphQL, strings.Join(messages, "; "))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return errEmptyData
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("commerce: decode data: %w", err)
	}
	return nil
}

func drainError(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

func (c *Client) fallback(ctx context.Context, op string, err error) {
	fallbackCounter.Add(ctx, 1, "operation", op)
	if errors.Is(err, ErrNotConfigured) {
		return
	}
	c.logger(ctx, "commerce.fallback", map[string]any{"operation": op, "error": err})
}
