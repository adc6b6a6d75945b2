package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/proxy-batch-fetcher/pkg/config"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/logging"
	"github.com/Sternrassler/proxy-batch-fetcher/pkg/proxy"
)

// app carries what the root command prepares for its subcommands.
type app struct {
	cfgFile  string
	logLevel string
	pretty   bool

	cfg    config.Config
	logger zerolog.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "batchfetch",
		Short: "Rate-limited, retrying batch fetcher over rotating proxies",
		Long: `batchfetch renders one HTTP request per input row, sends them through
randomly sampled proxies under a token-bucket rate limit, retries failures
on later passes and writes an index-aligned raw result document.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&a.pretty, "pretty", false, "human-readable log output")

	cmd.AddCommand(newVerifyCmd(a))
	cmd.AddCommand(newRunCmd(a))

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return err
		}
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = a.pretty
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)

	a.cfg = cfg
	a.logger = logging.NewLogger(logging.ComponentCLI)
	return nil
}

func (a *app) loadPool() (*proxy.Pool, error) {
	pool, err := proxy.LoadFile(a.cfg.Proxies.File, a.cfg.ProxyOptions()...)
	if err != nil {
		return nil, err
	}
	a.logger.Info().
		Str("file", a.cfg.Proxies.File).
		Int("proxies", pool.Len()).
		Msg("Proxy pool loaded")
	return pool, nil
}
