package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-workflow/internal/pipeline"
)

func newValidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline...]",
		Short: "Check pipeline definitions without running them",
		Long: `Load the configuration and check the shape of each named pipeline, or
of every pipeline when none is named: stage ids, matrix axes and parameter
declarations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			a, err := g.app(cmd, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := a.Runner.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = cat.Pipelines()
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range names {
				p, err := cat.Pipeline(name)
				if err == nil {
					err = pipeline.ValidatePipeline(p)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %s\n", name, formatError(err))
					continue
				}
				fmt.Fprintf(out, "ok   %s (%s)\n", name, cat.Origin(name))
			}
			for _, doc := range cat.Ignored() {
				fmt.Fprintf(out, "skip %s\n", doc)
			}
			if failed > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d pipelines invalid", failed, len(names))}
			}
			return nil
		},
	}
}
