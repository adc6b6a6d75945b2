// Package client performs a single request descriptor through its proxy and
// decodes the JSON body. It does not retry; retries happen across passes in
// the batch fetcher.
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
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
)

// Prometheus metrics for outbound requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_requests_total",
		Help: "Total outbound requests by target host and outcome",
	}, []string{"host", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batchfetch_request_duration_seconds",
		Help:    "Outbound request duration in seconds by target host",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_errors_total",
		Help: "Total request failures by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// Timeout bounds one request end to end (dial through body read).
	Timeout time.Duration

	// UserAgent is set when a descriptor carries no User-Agent header.
	UserAgent string

	// MaxBodyBytes caps the response body size.
	MaxBodyBytes int64

	// MaxIdleConnsPerHost is applied to every per-proxy transport.
	MaxIdleConnsPerHost int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		UserAgent:           "proxy-batch-fetcher/0.1",
		MaxBodyBytes:        32 << 20,
		MaxIdleConnsPerHost: 4,
	}
}

// Client executes request descriptors. One *http.Client is kept per proxy
// endpoint so connections to the same proxy are reused across passes.
type Client struct {
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}

	return &Client{
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentFetchClient),
		clients: make(map[string]*http.Client),
	}
}

// Do performs d and returns the JSON body. Any network error, non-2xx status
// or non-JSON body is returned as a *FetchError.
func (c *Client) Do(ctx context.Context, d request.Descriptor) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, d)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, c.fail(descriptorHost(d), fe)
		}
		return nil, err
	}
	host := req.URL.Host

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("proxy", d.Proxy.String()).
		Msg("Executing request")

	resp, err := c.httpClient(d).Do(req)
	if err != nil {
		class := ErrorClassNetwork
		if ctx.Err() != nil {
			class = ErrorClassCancelled
		}
		return nil, c.fail(host, &FetchError{Class: class, Message: "request failed", Err: err})
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(host, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		})
	}

	if readErr != nil {
		return nil, c.fail(host, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			Err:        readErr,
		})
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, c.fail(host, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    fmt.Sprintf("body exceeds %d bytes", c.config.MaxBodyBytes),
		})
	}

	payload := bytes.TrimSpace(body)
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, c.fail(host, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "response body is not valid JSON",
		})
	}

	requestsTotal.WithLabelValues(host, "ok").Inc()
	return json.RawMessage(payload), nil
}

// Close releases idle connections held by the per-proxy transports.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, hc := range c.clients {
		hc.CloseIdleConnections()
		delete(c.clients, key)
	}
	return nil
}

func (c *Client) fail(host string, fe *FetchError) error {
	requestsTotal.WithLabelValues(host, string(fe.Class)).Inc()
	errorsTotal.WithLabelValues(string(fe.Class)).Inc()

	c.logger.Debug().
		Err(fe.Err).
		Str("host", host).
		Int("status", fe.StatusCode).
		Str("error_class", string(fe.Class)).
		Msg("Request failed")

	return fe
}

// descriptorHost returns the URL host of d for metric labels, or "" when the
// URL does not parse.
func descriptorHost(d request.Descriptor) string {
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// newRequest builds the *http.Request: params go to the query string for GET
// and to a form body for POST unless an explicit body is given.
func (c *Client) newRequest(ctx context.Context, d request.Descriptor) (*http.Request, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}
	method, err := request.NormalizeMethod(method)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassClient, Message: "build request", Err: err}
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassClient, Message: "parse url", Err: err}
	}
	if method == http.MethodGet && d.Body != nil {
		return nil, &FetchError{Class: ErrorClassClient, Message: "build request", Err: errGetWithBody}
	}

	var body io.Reader
	contentType := ""
	switch {
	case method == http.MethodGet && len(d.Params) > 0:
		q := u.Query()
		for k, vs := range d.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	case method == http.MethodPost && d.Body != nil:
		body = bytes.NewReader(d.Body)
		if trimmed := bytes.TrimSpace(d.Body); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			contentType = "application/json"
		}
	case method == http.MethodPost:
		body = strings.NewReader(d.Params.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &FetchError{Class: ErrorClassClient, Message: "create request", Err: err}
	}

	for k, vs := range d.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

// httpClient returns the cached client for d's proxy.
func (c *Client) httpClient(d request.Descriptor) *http.Client {
	key := ""
	if !d.Proxy.IsZero() {
		key = d.Proxy.URL().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[key]; ok {
		return hc
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if !d.Proxy.IsZero() {
		transport.Proxy = http.ProxyURL(d.Proxy.URL())
	}
	transport.MaxIdleConnsPerHost = c.config.MaxIdleConnsPerHost

	hc := &http.Client{
		Transport: transport,
		Timeout:   c.config.Timeout,
	}
	c.clients[key] = hc
	return hc
}
