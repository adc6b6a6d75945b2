package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// VerifyResult is the outcome of one self-test call.
type VerifyResult struct {
	Endpoint Endpoint
	// IP is the external address reported by the echo endpoint.
	IP      string
	Latency time.Duration
	Err     error
}

// OK reports whether the call succeeded.
func (r VerifyResult) OK() bool {
	return r.Err == nil
}

// Verify calls the echo endpoint through the first min(sampleSize, Len())
// pool entries, one after another, at most one call per gap. Per-endpoint
// failures are recorded in the results and never abort the check. The only
// returned error is context cancellation, together with the results gathered
// so far.
func (p *Pool) Verify(ctx context.Context, sampleSize int, gap time.Duration) ([]VerifyResult, error) {
	n := min(sampleSize, len(p.endpoints))
	if n <= 0 {
		return nil, nil
	}

	limit := rate.Inf
	if gap > 0 {
		limit = rate.Every(gap)
	}
	limiter := rate.NewLimiter(limit, 1)

	results := make([]VerifyResult, 0, n)
	for i := 0; i < n; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return results, fmt.Errorf("verify paced wait: %w", err)
		}

		res := p.verifyOne(ctx, p.endpoints[i])
		results = append(results, res)

		if res.Err != nil {
			proxyVerifyTotal.WithLabelValues("error").Inc()
			p.logger.Warn().
				Err(res.Err).
				Str("proxy", res.Endpoint.String()).
				Msg("Proxy self-test failed")
			continue
		}

		proxyVerifyTotal.WithLabelValues("ok").Inc()
		p.logger.Info().
			Str("proxy", res.Endpoint.String()).
			Str("ip", res.IP).
			Dur("latency", res.Latency).
			Msg("Proxy self-test ok")
	}

	return results, nil
}

func (p *Pool) verifyOne(ctx context.Context, ep Endpoint) VerifyResult {
	res := VerifyResult{Endpoint: ep}

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(ep.URL())},
		Timeout:   p.verifyTimeout,
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.echoURL, nil)
	if err != nil {
		res.Err = fmt.Errorf("create request: %w", err)
		return res
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("echo request: %w", err)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		res.Err = fmt.Errorf("read echo body: %w", err)
		return res
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("echo status %d", resp.StatusCode)
		return res
	}

	res.IP = strings.TrimSpace(string(body))
	return res
}
