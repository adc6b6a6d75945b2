package proxy

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
)

// DefaultEchoURL returns the caller's public IP as plain text.
const DefaultEchoURL = "https://api.ipify.org/"

// Pool hands out proxy endpoints chosen uniformly at random with replacement.
// It is safe for concurrent use.
type Pool struct {
	endpoints []Endpoint

	mu  sync.Mutex
	rng *rand.Rand

	echoURL       string
	verifyTimeout time.Duration
	logger        zerolog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithRand sets the random source used by Sample. Intended for tests.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) {
		p.rng = r
	}
}

// WithEchoURL overrides the endpoint Verify calls.
func WithEchoURL(u string) Option {
	return func(p *Pool) {
		p.echoURL = u
	}
}

// WithVerifyTimeout sets the per-call timeout used by Verify.
func WithVerifyTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.verifyTimeout = d
	}
}

// WithLogger sets the pool logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// NewPool builds a pool from already parsed endpoints.
func NewPool(endpoints []Endpoint, opts ...Option) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, &ConfigError{Source: "endpoints", Reason: "no proxy endpoints"}
	}

	p := &Pool{
		endpoints:     append([]Endpoint(nil), endpoints...),
		echoURL:       DefaultEchoURL,
		verifyTimeout: 15 * time.Second,
		logger:        logging.NewLogger(logging.ComponentProxyPool),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return p, nil
}

// Load parses proxy records from r. source names r in error messages.
func Load(r io.Reader, source string, opts ...Option) (*Pool, error) {
	endpoints, err := ParseRecords(r, source)
	if err != nil {
		return nil, err
	}
	return NewPool(endpoints, opts...)
}

// LoadFile parses proxy records from the file at path.
func LoadFile(path string, opts ...Option) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Reason: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	return Load(f, path, opts...)
}

// ParseRecords reads one record per line. Blank lines and '#' comments are
// skipped. An empty source or any malformed record yields a *ConfigError.
func ParseRecords(r io.Reader, source string) ([]Endpoint, error) {
	var endpoints []Endpoint

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ep, err := ParseEndpoint(line)
		if err != nil {
			return nil, &ConfigError{Source: source, Line: lineNo, Reason: err.Error()}
		}
		endpoints = append(endpoints, ep)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Source: source, Reason: fmt.Sprintf("read: %v", err)}
	}

	if len(endpoints) == 0 {
		return nil, &ConfigError{Source: source, Reason: "no proxy records"}
	}
	return endpoints, nil
}

// Sample returns one endpoint chosen uniformly at random. Calls are
// independent; the same endpoint may be returned to concurrent callers.
func (p *Pool) Sample() Endpoint {
	p.mu.Lock()
	i := p.rng.IntN(len(p.endpoints))
	p.mu.Unlock()

	proxySamplesTotal.Inc()
	return p.endpoints[i]
}

// Len returns the number of endpoints in the pool.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Endpoints returns a copy of the pool contents in load order.
func (p *Pool) Endpoints() []Endpoint {
	return append([]Endpoint(nil), p.endpoints...)
}
