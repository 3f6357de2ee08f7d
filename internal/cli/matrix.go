package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-workflow/internal/matrix"
)

func newMatrixCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "matrix <pipeline> <job>",
		Short: "Show the instantiations a job expands to",
		Args:  cobra.ExactArgs(2),
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
			p, err := cat.Pipeline(args[0])
			if err != nil {
				return err
			}
			job, ok := p.Job(args[1])
			if !ok {
				return fmt.Errorf("pipeline %q has no job %q", p.Name, args[1])
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tMATRIX\tSOURCE")
			bindings := matrix.Expand(job.Strategy)
			if len(bindings) == 0 {
				fmt.Fprintln(tw, "0\t-\tsingle")
			}
			for _, b := range bindings {
				source := "product"
				if b.Included {
					source = "include"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", b.Index, matrixText(b.Values), source)
			}
			return tw.Flush()
		},
	}
}
