// Package ollama implements the HTTP client for the upstream Ollama instance.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"
)

const defaultBaseURL = "http://localhost:11434"

// maxResponseBytes caps how much of a generate response is read. Full model
// outputs fit comfortably; this only guards against a runaway upstream.
const maxResponseBytes = 1 << 26 // 64 MiB

// Client talks to a single Ollama instance. Generation calls get a
// minutes-scale timeout because inference is slow; the tags probe used for
// health checks gets a seconds-scale one. Each call derives its own
// deadline from the inbound context, so caller disconnects cancel the
// upstream request.
type Client struct {
	baseURL         string
	http            *http.Client
	generateTimeout time.Duration
	healthTimeout   time.Duration
}

// Options configures a Client. Zero timeouts get production defaults.
type Options struct {
	BaseURL         string
	GenerateTimeout time.Duration
	HealthTimeout   time.Duration
	// Resolver, when non-nil, caches DNS lookups for outbound dials.
	Resolver *dnscache.Resolver
}

// New creates an Ollama Client with a tuned http.Client.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false, // Ollama is typically HTTP/1.1
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if opts.Resolver != nil {
		resolver := opts.Resolver
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}

	generateTimeout := opts.GenerateTimeout
	if generateTimeout == 0 {
		generateTimeout = 300 * time.Second
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout == 0 {
		healthTimeout = 5 * time.Second
	}

	return &Client{
		baseURL:         baseURL,
		http:            &http.Client{Transport: t},
		generateTimeout: generateTimeout,
		healthTimeout:   healthTimeout,
	}
}

// Generate forwards a raw generation payload to /api/generate and returns
// the response body verbatim.
func (c *Client) Generate(ctx context.Context, payload []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	return body, nil
}

// ListModels returns the model names the instance advertises on /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}

	var names []string
	gjson.ParseBytes(respBody).Get("models").ForEach(func(_, model gjson.Result) bool {
		names = append(names, model.Get("name").String())
		return true
	})
	return names, nil
}

// HealthCheck verifies connectivity to the Ollama instance via the tags
// endpoint. It performs no generation and touches no proxy state.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// apiError represents a non-success response from the Ollama API.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("ollama: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *apiError) HTTPStatus() int { return e.StatusCode }

// parseAPIError reads the response body and returns a structured error.
func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &apiError{StatusCode: resp.StatusCode, Body: string(body)}
}
