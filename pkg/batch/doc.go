// Package batch runs a list of independent HTTP requests concurrently and
// returns one result per request, in request order.
//
// A run is a sequence of passes. Every pass dispatches the still pending
// requests to a fixed worker pool; each worker takes a token from a
// ratelimit.Bucket before calling the transport. Successful responses
// complete their slot, failures stay pending. If anything is pending and the
// retry budget allows another pass, the generator is called again so that
// retried requests get freshly sampled proxies and fresh time-dependent
// parameters, and only the descriptors of pending indices are used.
//
// Example usage:
//
//	cfg := batch.DefaultConfig()
//	cfg.RetryBudget = 3
//	f, err := batch.NewFetcher(client.New(client.DefaultConfig()), cfg)
//	if err != nil {
//	    return err
//	}
//	report, err := f.Run(ctx, compiled.Generator(rows, pool))
//	for _, slot := range report.Results {
//	    if slot.Status == batch.StatusCompleted {
//	        use(slot.Payload)
//	    }
//	}
//
// Individual request failures never fail a run. Run returns an error only for
// an invalid configuration, a failing generator, or a generator whose list
// length changes between passes (ErrGeneratorShape).
package batch
