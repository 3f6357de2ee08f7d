package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newScheduleCmd(g *globals) *cobra.Command {
	var (
		from  string
		count int
		prev  bool
	)
	cmd := &cobra.Command{
		Use:   "schedule [name]",
		Short: "List schedules or show the run times of one",
		Long: `Without a name, schedule lists the configured schedules. With a name it
prints the next run times after --from, or the previous ones with --prev.
A --from value without an offset is read in the schedule's time zone.`,
		Args: cobra.MaximumNArgs(1),
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
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if len(args) == 0 {
				fmt.Fprintln(tw, "NAME\tCRON\tTZ")
				for _, name := range cat.Schedules() {
					s, _ := cat.Schedule(name)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Cron, s.TZ)
				}
				return tw.Flush()
			}

			s, err := cat.Schedule(args[0])
			if err != nil {
				return err
			}
			start := time.Now().In(s.Location())
			if from != "" {
				if start, err = s.ParseTime(from); err != nil {
					return err
				}
			}
			for _, ts := range s.Times(start, count, prev) {
				fmt.Fprintln(tw, ts.Format(time.DateTime+" -07:00"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start time (default now)")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of run times")
	cmd.Flags().BoolVar(&prev, "prev", false, "walk backwards from the start time")
	return cmd
}
