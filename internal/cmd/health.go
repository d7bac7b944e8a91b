package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/health"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the appliance diagnostics",
	Long: `Run the appliance diagnostics: DNS resolution, blocking, services,
network connectivity and database integrity.

Exits non-zero when any check fails.

Examples:
  pimgr health
  pimgr health --errors
  pimgr health --report /tmp/pihole-report.txt`,
	RunE: runHealth,
}

var (
	healthReport string
	healthErrors bool
)

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&healthReport, "report", "", "write a full diagnostic report to this file (- for stdout)")
	healthCmd.Flags().BoolVar(&healthErrors, "errors", false, "also show recent FTL and system errors")
}

func printReport(cmd *cobra.Command, rep health.Report) {
	for _, r := range rep.Results {
		outln(cmd, tui.Mark(r.Passed)+" "+r.Name+": "+r.Detail)
		for _, it := range r.Items {
			line := "    " + tui.Mark(it.OK) + " " + it.Label
			if it.Detail != "" {
				line += " (" + it.Detail + ")"
			}
			outln(cmd, line)
		}
	}
	outln(cmd)
	if rep.Healthy() {
		outln(cmd, tui.Success("All %d checks passed", rep.Total))
	} else {
		outln(cmd, tui.Fail("%d of %d checks passed", rep.Passed, rep.Total))
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	checker := app.checker()
	ctx := cmd.Context()

	var rep health.Report
	if healthReport != "" {
		var w io.Writer = out(cmd)
		if healthReport != "-" {
			f, err := os.Create(healthReport)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", healthReport, err)
			}
			defer f.Close()
			w = f
		}
		var err error
		rep, err = checker.WriteReport(ctx, w, time.Now())
		if err != nil {
			return err
		}
		if healthReport != "-" {
			outln(cmd, tui.Success("Report written to %s", healthReport))
		}
	} else {
		outln(cmd, tui.Heading("Health check"))
		rep = checker.RunAll(ctx)
		printReport(cmd, rep)
	}

	if healthErrors {
		ftlErrs, sysErrs := checker.RecentErrors(ctx, 10)
		outln(cmd)
		outln(cmd, tui.Heading("Recent FTL errors"))
		printLines(cmd, ftlErrs)
		outln(cmd, tui.Heading("Recent system errors"))
		printLines(cmd, sysErrs)
	}

	for _, r := range rep.Results {
		app.audit.Status(statusLevel(r.Passed), r.Name+": "+r.Detail)
	}
	if !rep.Healthy() {
		return fmt.Errorf("%d of %d health checks failed", rep.Total-rep.Passed, rep.Total)
	}
	return nil
}

func printLines(cmd *cobra.Command, lines []string) {
	if len(lines) == 0 {
		outln(cmd, "  none")
		return
	}
	for _, l := range lines {
		outln(cmd, "  "+l)
	}
}

func statusLevel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
