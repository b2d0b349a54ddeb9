package main

import (
	"fmt"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/cedar"
	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/policy"
	"github.com/spf13/cobra"
)

func runCompile(cmd *cobra.Command, args []string) error {
	o, err := policy.LoadOverrides(overridesFile)
	if err != nil {
		return err
	}
	src, err := policy.Compile(o)
	if err != nil {
		return err
	}
	if _, err := cedar.NewEngineFromSource(overridesFile, src); err != nil {
		return fmt.Errorf("compiled policies rejected: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), src)
	return err
}
