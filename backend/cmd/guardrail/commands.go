package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	evalFile   string
	evalQuery  string
	evalSource string
	evalUser   string
	evalJSON   bool

	overridesFile string

	rootCmd = &cobra.Command{
		Use:   "guardrail",
		Short: "Control/data-plane guardrail for browser agents",
		Long: `guardrail sanitizes untrusted page content, asks a language model for a
single intent constrained to the user's request, scores it and adjudicates it
to allow, deny or escalate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP evaluation service",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one page against one user request",
		Long: `Evaluate runs the full pipeline once and prints the decision.
Exits with status 2 when the decision is deny or escalate, or when no
decision could be made.`,
		Args: cobra.NoArgs,
		RunE: runEvaluate, // Defined in cmd_evaluate.go
	}

	compileCmd = &cobra.Command{
		Use:   "compile",
		Short: "Print the Cedar policies generated from an overrides file",
		Args:  cobra.NoArgs,
		RunE:  runCompile, // Defined in cmd_compile.go
	}
)

func init() {
	evaluateCmd.Flags().StringVarP(&evalFile, "file", "f", "", "page to evaluate, - for stdin")
	evaluateCmd.Flags().StringVarP(&evalQuery, "query", "q", "", "the trusted user request")
	evaluateCmd.Flags().StringVar(&evalSource, "source", "", "source identifier recorded in provenance (defaults to the file name)")
	evaluateCmd.Flags().StringVar(&evalUser, "user", "", "user whose policy overrides apply")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "print the full result as JSON")
	_ = evaluateCmd.MarkFlagRequired("file")
	_ = evaluateCmd.MarkFlagRequired("query")

	compileCmd.Flags().StringVarP(&overridesFile, "overrides", "o", "", "overrides YAML file")
	_ = compileCmd.MarkFlagRequired("overrides")

	rootCmd.AddCommand(serveCmd, evaluateCmd, compileCmd)
}
