// Package testutil provides testing utilities for the batch fetcher.
package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockProxy is an HTTP server that acts as a forward proxy and as the
// upstream at the same time. Requests for plain http:// targets sent through
// it arrive in absolute-URI form and are answered by path, so tests can point
// both the proxy URL and the target host at it.
type MockProxy struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	attempts map[string]int

	// Tracking
	RequestCount      int
	ProxiedCount      int
	LastRequestHeader http.Header
	LastProxyAuth     string
}

// NewMockProxy starts a new mock proxy.
func NewMockProxy() *MockProxy {
	mock := &MockProxy{
		handlers: make(map[string]http.HandlerFunc),
		attempts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if strings.HasPrefix(r.RequestURI, "http://") {
			mock.ProxiedCount++
			mock.LastProxyAuth = r.Header.Get("Proxy-Authorization")
		}
		mock.attempts[requestKey(r)]++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the server base URL (http://127.0.0.1:port).
func (m *MockProxy) URL() string {
	return m.server.URL
}

// HostPort returns the listener host and port, for building proxy
// endpoints.
func (m *MockProxy) HostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(m.server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Close shuts down the mock server.
func (m *MockProxy) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockProxy) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ProxiedCount = 0
	m.LastRequestHeader = nil
	m.LastProxyAuth = ""
	m.attempts = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockProxy) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockProxy) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, resp)
	})
}

// SetFlaky makes path fail with 503 for the first failures attempts of each
// distinct query, then answer with ok.
func (m *MockProxy) SetFlaky(path string, failures int, ok MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if m.Attempts(requestKey(r)) <= failures {
			writeResponse(w, NewServerErrorResponse())
			return
		}
		writeResponse(w, ok)
	})
}

// SetEcho makes path answer with the caller's IP as plain text, like
// api.ipify.org.
func (m *MockProxy) SetEcho(path string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(host))
	})
}

// Attempts returns how many times the given path?query key was requested.
func (m *MockProxy) Attempts(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts[key]
}

// GetRequestCount returns the number of requests received.
func (m *MockProxy) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetProxiedCount returns the number of requests received in proxy form.
func (m *MockProxy) GetProxiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ProxiedCount
}

// GetLastProxyAuth returns the last Proxy-Authorization header seen.
func (m *MockProxy) GetLastProxyAuth() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastProxyAuth
}

// defaultHandler echoes the request back as JSON.
func (m *MockProxy) defaultHandler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	payload := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  r.URL.Query(),
		"form":   r.PostForm,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "unavailable"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>blocked</html>`,
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func requestKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
