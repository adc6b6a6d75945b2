// Package request defines the request descriptors the batch fetcher
// dispatches and the generators that produce them.
package request

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/proxy"
)

// Descriptor is one fully self-contained outbound request. It is a value
// type with no reference back to the proxy pool; a fresh one is built for
// every pass so retries get a newly sampled proxy.
type Descriptor struct {
	Method string
	URL    string

	// Params are sent as the query string for GET and as a form-encoded
	// body for POST (unless Body is set).
	Params url.Values

	// Body is an explicit POST payload. It takes precedence over Params.
	// The client rejects GET descriptors with a non-nil Body.
	Body []byte

	Headers http.Header

	// Proxy routes the request. The zero Endpoint means a direct request.
	Proxy proxy.Endpoint
}

// Generator produces the complete, index-aligned request list for a batch.
// Repeated calls must return the same number of descriptors with the same
// index mapping; only proxies and time-varying parameters may differ.
type Generator func(ctx context.Context) ([]Descriptor, error)

// ProxySampler hands out one proxy per request. *proxy.Pool satisfies it.
type ProxySampler interface {
	Sample() proxy.Endpoint
}

// NormalizeMethod upper-cases m and checks it is GET or POST.
func NormalizeMethod(m string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case http.MethodGet:
		return http.MethodGet, nil
	case http.MethodPost:
		return http.MethodPost, nil
	default:
		return "", fmt.Errorf("unsupported method %q (want GET or POST)", m)
	}
}

// Static returns a generator that always yields copies of descs, each with a
// freshly sampled proxy when sampler is non-nil.
func Static(descs []Descriptor, sampler ProxySampler) Generator {
	return func(_ context.Context) ([]Descriptor, error) {
		out := make([]Descriptor, len(descs))
		for i, d := range descs {
			out[i] = d.Clone()
			if sampler != nil {
				out[i].Proxy = sampler.Sample()
			}
		}
		return out, nil
	}
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	c := d
	if d.Params != nil {
		c.Params = make(url.Values, len(d.Params))
		for k, v := range d.Params {
			c.Params[k] = append([]string(nil), v...)
		}
	}
	if d.Body != nil {
		c.Body = append([]byte(nil), d.Body...)
	}
	if d.Headers != nil {
		c.Headers = d.Headers.Clone()
	}
	return c
}
