package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that proxies work by asking an IP echo service through them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.loadPool()
			if err != nil {
				return err
			}

			n := a.cfg.Proxies.VerifySample
			if cmd.Flags().Changed("sample") {
				n = sample
			}

			results, err := pool.Verify(cmd.Context(), n, a.cfg.Proxies.VerifyGap)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROXY\tRESULT\tLATENCY")
			ok := 0
			for _, r := range results {
				if r.OK() {
					ok++
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Endpoint, r.IP, r.Latency.Round(time.Millisecond))
					continue
				}
				fmt.Fprintf(w, "%s\terror: %v\t-\n", r.Endpoint, r.Err)
			}
			w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d proxies ok\n", ok, len(results))

			return err
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 0, "number of proxies to check (default proxies.verify_sample)")
	return cmd
}
