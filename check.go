package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"phishguard/detection"
)

// Output formats for the check command.
const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

const defaultCheckConcurrency = 4

var errSomeChecksFailed = errors.New("one or more URLs could not be classified")

type checkOptions struct {
	format      string
	concurrency int
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check URL [URL...]",
		Short: "Classify one or more URLs",
		Long: `Classify one or more URLs and print the verdicts.

URLs are classified concurrently, each as an independent request.
The command exits non-zero if any URL could not be classified.`,
		Example: `  phishguard check google.com
  phishguard check --format markdown http://paypal-secure.verify-login.com/paypal/account`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatText, formatJSON, formatMarkdown:
			default:
				return fmt.Errorf("unknown format %q (want text, json or markdown)", opts.format)
			}
			if opts.concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1, got %d", opts.concurrency)
			}

			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), svc, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "Output format: text, json or markdown")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", defaultCheckConcurrency, "Number of URLs classified at once")

	return cmd
}

// urlChecker is the part of the service the check command uses.
type urlChecker interface {
	Classify(ctx context.Context, raw string) (detection.Verdict, error)
}

func runCheck(ctx context.Context, out io.Writer, svc urlChecker, urls []string, opts *checkOptions) error {
	outcomes := make([]detection.Outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i, raw := range urls {
		g.Go(func() error {
			v, err := svc.Classify(gctx, raw)
			outcomes[i] = detection.Outcome{Input: raw, Verdict: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := writeOutcomes(out, outcomes, opts.format); err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Err != nil {
			return errSomeChecksFailed
		}
	}
	return nil
}

type checkResult struct {
	Input string `json:"input"`
	*detection.CheckResponse
	Error string `json:"error,omitempty"`
}

func writeOutcomes(out io.Writer, outcomes []detection.Outcome, format string) error {
	switch format {
	case formatJSON:
		results := make([]checkResult, 0, len(outcomes))
		for _, o := range outcomes {
			r := checkResult{Input: o.Input}
			if o.Err != nil {
				r.Error = o.Err.Error()
			} else {
				resp := detection.NewCheckResponse(o.Verdict)
				r.CheckResponse = &resp
			}
			results = append(results, r)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case formatMarkdown:
		return detection.WriteMarkdown(out, outcomes)
	default:
		return detection.WriteText(out, outcomes)
	}
}
