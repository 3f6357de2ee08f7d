package cli

import (
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := g.app(cmd, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func newAgentCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Execute tasks on behalf of a remote executor",
		Long: `Expose this host's task handlers over HTTP. An executor whose
agent.url points here dispatches every task it has no local handler for.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Agent.Addr = addr
			}
			// an agent must not forward to another agent
			cfg.Agent.URL = ""
			a, err := g.app(cmd, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ServeAgent(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8090)")
	return cmd
}
