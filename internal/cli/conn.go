package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"go-workflow/internal/conn"
)

func newConnCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conn",
		Short: "Inspect named connections",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "resolve <name>",
			Short: "Print the resolved endpoint without credentials",
			Args:  cobra.ExactArgs(1),
			RunE: withConnection(g, func(cmd *cobra.Command, ep *conn.Endpoint, _ *conn.Resolver, _ []string) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(ep); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ep.String())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "ping <name>",
			Short: "Check that a connection is reachable",
			Args:  cobra.ExactArgs(1),
			RunE: withConnection(g, func(cmd *cobra.Command, ep *conn.Endpoint, res *conn.Resolver, _ []string) error {
				if err := res.Ping(cmd.Context(), ep); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", ep.Name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "glob <name> [pattern]",
			Short: "List objects under a connection",
			Args:  cobra.RangeArgs(1, 2),
			RunE: withConnection(g, func(cmd *cobra.Command, ep *conn.Endpoint, res *conn.Resolver, args []string) error {
				pattern := "*"
				if len(args) > 1 {
					pattern = args[1]
				}
				matches, err := res.Glob(cmd.Context(), ep, pattern)
				if err != nil {
					return err
				}
				for _, m := range matches {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			}),
		},
	)
	return cmd
}

type connFunc func(cmd *cobra.Command, ep *conn.Endpoint, res *conn.Resolver, args []string) error

// withConnection resolves args[0] before calling fn.
func withConnection(g *globals, fn connFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := g.config(cmd)
		if err != nil {
			return err
		}
		a, err := g.app(cmd, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()
		ep, res, err := a.Runner.ResolveConnection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return fn(cmd, ep, res, args)
	}
}
