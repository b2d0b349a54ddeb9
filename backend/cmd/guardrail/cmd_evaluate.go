package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/pipeline"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/policy"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/provider"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/sanitizer"
	"github.com/spf13/cobra"
)

// errNotAllowed makes the process exit with status 2
var errNotAllowed = errors.New("action not allowed")

// runner is the slice of the pipeline evaluate needs
type runner interface {
	Run(ctx context.Context, raw sanitizer.RawContent, userQuery string, opts ...pipeline.RunOption) (*pipeline.Result, error)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := readPage(evalFile, evalSource, cmd.InOrStdin())
	if err != nil {
		return err
	}

	// Without a generator no decision can be made, which counts as a deny.
	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", errNotAllowed, err)
	}

	a, err := newApp(cfg, logger, gen, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	return evaluate(cmd.Context(), a.pipeline, raw, evalQuery, evalUser, evalJSON, cmd.OutOrStdout())
}

func readPage(path, source string, stdin io.Reader) (sanitizer.RawContent, error) {
	var (
		body []byte
		err  error
	)
	if path == "-" {
		body, err = io.ReadAll(stdin)
		if source == "" {
			source = "stdin"
		}
	} else {
		body, err = os.ReadFile(path)
		if source == "" {
			source = filepath.Base(path)
		}
	}
	if err != nil {
		return sanitizer.RawContent{}, fmt.Errorf("failed to read page: %w", err)
	}
	return sanitizer.RawContent{Source: source, Body: body}, nil
}

func evaluate(ctx context.Context, p runner, raw sanitizer.RawContent, query, user string, asJSON bool, out io.Writer) error {
	res, runErr := p.Run(ctx, raw, query, pipeline.ForUser(user))

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(out, res, runErr)
	}

	if runErr != nil {
		return fmt.Errorf("%w: %w", errNotAllowed, runErr)
	}
	if res.Effective().Decision != policy.Allow {
		return errNotAllowed
	}
	return nil
}

func printResult(out io.Writer, res *pipeline.Result, runErr error) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	eff := res.Effective()
	if res != nil && res.Processed != nil {
		fmt.Fprintf(tw, "source:\t%s\n", res.Processed.Provenance.Source)
		fmt.Fprintf(tw, "signals:\t%s\n", joinOrNone(res.Processed.RiskSignals))
		if res.Processed.Degraded {
			fmt.Fprintf(tw, "degraded:\ttrue\n")
		}
	}
	if res != nil && res.Intent != nil {
		fmt.Fprintf(tw, "intent:\t%s\n", res.Intent.Intent)
	}
	if res != nil && res.Assessment != nil {
		fmt.Fprintf(tw, "risk score:\t%.2f\n", res.Assessment.RiskScore)
		fmt.Fprintf(tw, "flags:\t%s\n", joinOrNone(res.Assessment.Flags))
		fmt.Fprintf(tw, "recommendation:\t%s\n", res.Assessment.Recommendation)
	}
	if runErr != nil {
		fmt.Fprintf(tw, "error:\t%s\n", provider.KindOf(runErr).Code())
	}
	fmt.Fprintf(tw, "decision:\t%s\n", strings.ToUpper(string(eff.Decision)))
	fmt.Fprintf(tw, "reason:\t%s\n", eff.Reason)
	if res != nil && res.ReviewID != "" {
		fmt.Fprintf(tw, "review id:\t%s\n", res.ReviewID)
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
