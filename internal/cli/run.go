package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go-workflow/internal/model"
	"go-workflow/internal/pipeline"
	"go-workflow/pkg/utils"
)

type runFlags struct {
	params   []string
	parallel int
	report   string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.params, "param", "p", nil, "pipeline parameter as key=value (repeatable)")
	fs.IntVar(&f.parallel, "parallel", 0, "run up to N instantiations of a job at once (default from config)")
	fs.StringVar(&f.report, "report", "", "write the execution report to a .json or .csv file")
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			if f.parallel > 0 {
				cfg.Executor.Parallel = f.parallel
			}
			params, err := utils.ParseAssignments(f.params)
			if err != nil {
				return err
			}
			a, err := g.app(cmd, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Runner.Execute(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if f.report != "" {
				res, err := pipeline.ExportReport(report, f.report)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report: %s (%d records)\n", res.Path, res.RecordCount)
			}
			if report.Status != model.RunSucceeded {
				return &ExitError{Code: 1, Err: fmt.Errorf("run %s %s", report.RunID, report.Status)}
			}
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// printReport writes one line per instantiation, then the failures.
func printReport(w io.Writer, r *model.ExecutionReport) {
	fmt.Fprintf(w, "run %s: %s %s in %s\n", r.RunID, r.Pipeline, r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tMATRIX\tSTATUS\tSTAGES")
	for i := range r.Instances {
		inst := &r.Instances[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.Label(), matrixText(inst.Matrix), inst.Status, stageSummary(inst.Stages))
	}
	tw.Flush()
	for _, inst := range pipeline.FailedInstances(r) {
		fmt.Fprintf(w, "%s failed at %s [%s]: %s\n", inst.Label(), inst.FailedStage, inst.ErrorKind, inst.Error)
	}
}

func matrixText(m *model.Map) string {
	if m.Len() == 0 {
		return "-"
	}
	parts := make([]string, 0, m.Len())
	m.Range(func(k string, v model.Value) bool {
		parts = append(parts, k+"="+v.Text())
		return true
	})
	return strings.Join(parts, ",")
}

func stageSummary(stages []model.StageReport) string {
	counts := map[model.StageStatus]int{}
	for _, s := range stages {
		counts[s.Status]++
	}
	return fmt.Sprintf("%d ok, %d failed, %d skipped", counts[model.StageSuccess], counts[model.StageFailed], counts[model.StageSkipped])
}
