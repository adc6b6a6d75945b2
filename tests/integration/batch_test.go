//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/proxy-batch-fetcher/internal/testutil"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/batch"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/client"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/proxy"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/request"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/store"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// mockPool returns a pool whose only endpoint is the mock proxy.
func mockPool(t *testing.T, mock *testutil.MockProxy) *proxy.Pool {
	t.Helper()

	host, port := mock.HostPort()
	pool, err := proxy.NewPool([]proxy.Endpoint{{Scheme: "http", Host: host, Port: port, Username: "u", Password: "p"}})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	return pool
}

func numberRows(n int) []request.Row {
	return request.RangeRows("number", 0, n)
}

func storeTemplate(t *testing.T) *request.Compiled {
	t.Helper()

	compiled, err := request.Template{
		Method: "GET",
		URL:    "http://upstream.invalid/stores/{{.number}}",
	}.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return compiled
}

// TestFullRunFlow tests the complete flow: Template → Proxy → Admission → Retry → Redis.
func TestFullRunFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockProxy()
	defer mock.Close()

	const n = 6
	for i := 0; i < n; i++ {
		failures := 0
		if i%2 == 1 {
			failures = 1
		}
		mock.SetFlaky(fmt.Sprintf("/stores/%d", i), failures, testutil.NewJSONResponse(fmt.Sprintf(`{"store":%d}`, i)))
	}

	cfg := batch.DefaultConfig()
	cfg.RetryBudget = 2

	ctx := context.Background()
	rows := numberRows(n)
	report, err := batch.Run(ctx, storeTemplate(t).Generator(rows, mockPool(t, mock)), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Resolved != n || report.Passes != 2 {
		t.Fatalf("Resolved = %d, Passes = %d, want %d and 2", report.Resolved, report.Passes, n)
	}

	doc, err := store.BuildDocument("pizza", rows, report)
	if err != nil {
		t.Fatalf("BuildDocument() error = %v", err)
	}

	st := store.NewRedisStore(redisClient, time.Hour)
	key := store.KeyFor(doc)
	if err := st.Save(ctx, key, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := st.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for i, rec := range loaded.Records {
		want := fmt.Sprintf(`{"store":%d}`, i)
		if string(rec.Data) != want {
			t.Errorf("record %d data = %s, want %s", i, rec.Data, want)
		}
		if rec.Input["number"] != strconv.Itoa(i) {
			t.Errorf("record %d input = %v", i, rec.Input)
		}
	}
	if loaded.ScraperIssues {
		t.Error("ScraperIssues = true, want false")
	}
}

// TestUnresolvedSlots verifies that persistent failures are stored as -1.
func TestUnresolvedSlots(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockProxy()
	defer mock.Close()
	mock.SetResponse("/stores/0", testutil.NewJSONResponse(`{"store":0}`))
	mock.SetResponse("/stores/1", testutil.NewRateLimitResponse())
	mock.SetResponse("/stores/2", testutil.NewJSONResponse(`{"store":2}`))

	cfg := batch.DefaultConfig()
	cfg.RetryBudget = 1

	ctx := context.Background()
	rows := numberRows(3)
	report, err := batch.Run(ctx, storeTemplate(t).Generator(rows, mockPool(t, mock)), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := client.ClassOf(report.Results[1].LastErr); got != client.ErrorClassRateLimit {
		t.Errorf("LastErr class = %s, want rate_limit", got)
	}

	doc, _ := store.BuildDocument("pizza", rows, report)
	st := store.NewRedisStore(redisClient, time.Hour)
	if err := st.Save(ctx, store.KeyFor(doc), doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := st.Load(ctx, store.KeyFor(doc))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.ScraperIssues || string(loaded.Records[1].Data) != "-1" {
		t.Errorf("ScraperIssues = %v, record 1 data = %s", loaded.ScraperIssues, loaded.Records[1].Data)
	}
	if mock.Attempts("/stores/1") != 2 {
		t.Errorf("attempts for unresolved row = %d, want 2", mock.Attempts("/stores/1"))
	}
}

// TestAdmissionThrottling verifies the bucket spreads requests over time.
func TestAdmissionThrottling(t *testing.T) {
	mock := testutil.NewMockProxy()
	defer mock.Close()

	cfg := batch.DefaultConfig()
	cfg.BucketCapacity = 2
	cfg.RefillRate = 20
	cfg.Backoff = 10 * time.Millisecond

	gen := func(ctx context.Context) ([]request.Descriptor, error) {
		pool := mockPool(t, mock)
		descs := make([]request.Descriptor, 22)
		for i := range descs {
			descs[i] = request.Descriptor{
				Method: http.MethodGet,
				URL:    "http://upstream.invalid/echo",
				Params: url.Values{"i": {strconv.Itoa(i)}},
				Proxy:  pool.Sample(),
			}
		}
		return descs, nil
	}

	start := time.Now()
	report, err := batch.Run(context.Background(), gen, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if report.Resolved != 22 {
		t.Fatalf("Resolved = %d, want 22", report.Resolved)
	}
	// 2 tokens up front, 20 more at ~20/s
	if elapsed < 500*time.Millisecond {
		t.Errorf("22 admissions took %v, want roughly 1s at 20 tokens/s", elapsed)
	}
}

// TestRedisExpiration tests that documents expire with the configured TTL.
func TestRedisExpiration(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	st := store.NewRedisStore(redisClient, 2*time.Second)

	report := &batch.Report{RunID: "short", StartedAt: time.Now(), Reason: batch.ReasonSettled}
	doc, _ := store.BuildDocument("pizza", nil, report)
	key := store.KeyFor(doc)

	if err := st.Save(ctx, key, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := st.Load(ctx, key); err != nil {
		t.Fatalf("Load() before expiry error = %v", err)
	}

	time.Sleep(3 * time.Second)

	if _, err := st.Load(ctx, key); err != store.ErrNotFound {
		t.Errorf("Load() after expiry error = %v, want ErrNotFound", err)
	}
}

// TestMetricsIncremented verifies that a run updates the Prometheus metrics.
func TestMetricsIncremented(t *testing.T) {
	mock := testutil.NewMockProxy()
	defer mock.Close()

	before := counterValue(t, "batchfetch_passes_total")

	_, err := batch.Run(context.Background(), storeTemplate(t).Generator(numberRows(2), mockPool(t, mock)), batch.DefaultConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if after := counterValue(t, "batchfetch_passes_total"); after <= before {
		t.Errorf("batchfetch_passes_total = %v, want > %v", after, before)
	}
}

func counterValue(t *testing.T, name string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
