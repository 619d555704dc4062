package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"phishguard/config"
	"phishguard/detection"
)

// NewRootCmd creates the root command. Without a subcommand it serves the
// HTTP API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phishguard",
		Short: "Classify URLs as safe or phishing",
		Long: `phishguard classifies URLs as safe or phishing.

Obvious phishing URLs are caught by syntactic rules. Everything else is scored
on 30 features built from the URL, the fetched page, and the domain's whois
record, and passed to a trained classifier.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime reads the configuration named by the command's flags and
// builds the logger.
func loadRuntime(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

// newService wires the classification pipeline from configuration.
func newService(cfg *config.Config, logger *slog.Logger) (*detection.Service, error) {
	var guard *detection.AddressGuard
	if cfg.BlockPrivateNetworks {
		g, err := detection.NewAddressGuard(cfg.BlockedNetworks)
		if err != nil {
			return nil, err
		}
		guard = g
	}

	var pages detection.PageFetcher
	switch cfg.FetchMode {
	case config.FetchModeBrowser:
		pages = detection.NewBrowserFetcher(cfg.ChromePath, cfg.UserAgent, guard, logger)
	default:
		pages = detection.NewHTTPFetcher(detection.NewPageClient(guard), cfg.UserAgent, cfg.MaxBodySize)
	}

	gatherer := detection.NewGatherer(
		pages,
		detection.NewWhoisLookup(nil),
		detection.GathererConfig{
			PageTimeout:  cfg.PageTimeout,
			WhoisTimeout: cfg.WhoisTimeout,
			Grace:        cfg.JoinGrace,
		},
		logger,
	)

	return detection.NewService(
		detection.NewNormalizer(detection.NewPageClient(guard), cfg.ProbeTimeout, cfg.MaxURLLength, logger),
		detection.NewRuleEngine(cfg.Rules),
		gatherer,
		detection.LoadClassifier(cfg.ModelPath, logger),
		cfg.Threat,
		logger,
	), nil
}
