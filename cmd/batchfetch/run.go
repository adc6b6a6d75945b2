package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/batch"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/client"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/config"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/metrics"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/store"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		vendor   string
		printDoc bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch every row of the configured job and store the raw document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if vendor != "" {
				a.cfg.Job.Vendor = vendor
			}
			if err := a.cfg.ValidateJob(); err != nil {
				return err
			}

			doc, err := a.run(cmd.Context())
			if err != nil {
				return err
			}

			if printDoc {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d resolved, %d unresolved in %d passes\n",
				doc.RunID, doc.Resolved, doc.Unresolved, doc.Passes)
			return nil
		},
	}

	cmd.Flags().StringVar(&vendor, "vendor", "", "override job.vendor")
	cmd.Flags().BoolVar(&printDoc, "print", false, "write the raw document to stdout")
	return cmd
}

// run executes the job. The metrics server, when enabled, runs alongside the
// batch and is shut down once the document is stored.
func (a *app) run(ctx context.Context) (*store.Document, error) {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	pool, err := a.loadPool()
	if err != nil {
		return nil, err
	}

	compiled, err := a.cfg.Job.Request.Compile()
	if err != nil {
		return nil, fmt.Errorf("job.request: %w", err)
	}
	rows, err := a.cfg.Rows()
	if err != nil {
		return nil, err
	}

	httpClient := client.New(a.cfg.ClientConfig())
	defer httpClient.Close()

	fetcher, err := batch.NewFetcher(httpClient, a.cfg.BatchConfig())
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	if a.cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           metrics.Mux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var doc *store.Document
	g.Go(func() error {
		defer close(done)

		report, runErr := fetcher.Run(gctx, compiled.Generator(rows, pool))
		if report == nil {
			return runErr
		}
		if runErr != nil {
			a.logger.Error().Err(runErr).Msg("Run stopped early; storing partial results")
		}

		var err error
		doc, err = store.BuildDocument(a.cfg.Job.Vendor, rows, report)
		if err != nil {
			return err
		}
		if st == nil {
			return runErr
		}

		// store even when the run was cancelled
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()

		key := store.KeyFor(doc)
		if err := st.Save(saveCtx, key, doc); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		a.logger.Info().
			Str("run_id", doc.RunID).
			Str("backend", a.cfg.Store.Backend).
			Str("key", key.String()).
			Bool("scraper_issues", doc.ScraperIssues).
			Msg("Document saved")
		return runErr
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, func(), error) {
	cfg := a.cfg.Store
	switch cfg.Backend {
	case config.StoreFS:
		st, err := store.NewFSStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		if err := st.EnsureLayout(a.cfg.Job.Vendor); err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		a.logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		return store.NewRedisStore(rdb, cfg.TTL), func() { rdb.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
