package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/tui"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show or change setup milestones",
	Long: `Show or change the setup milestones recorded in the progress file.

Without arguments, shows the current progress.`,
	RunE: runProgressShow,
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show setup progress",
	RunE:  runProgressShow,
}

var progressCompleteCmd = &cobra.Command{
	Use:   "complete <step>",
	Short: "Mark a milestone complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressComplete,
}

var progressIncompleteCmd = &cobra.Command{
	Use:   "incomplete <step>",
	Short: "Mark a milestone incomplete, keeping its timestamp",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressIncomplete,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <step>",
	Short: "Mark a milestone incomplete and clear its timestamp",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressReset,
}

var progressResetAllCmd = &cobra.Command{
	Use:   "reset-all",
	Short: "Forget every milestone",
	RunE:  runProgressResetAll,
}

var progressJSON bool

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressCompleteCmd)
	progressCmd.AddCommand(progressIncompleteCmd)
	progressCmd.AddCommand(progressResetCmd)
	progressCmd.AddCommand(progressResetAllCmd)

	progressCmd.PersistentFlags().BoolVar(&progressJSON, "json", false, "print the summary as JSON")
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	s := app.progress.Summary()
	if progressJSON {
		enc := json.NewEncoder(out(cmd))
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	outln(cmd, tui.Heading("Setup progress"))
	printf(cmd, "Progress: %d%%\n", s.ProgressPercent)
	if s.NextStep != "" {
		printf(cmd, "Next: %s\n", s.NextStep)
	}
	now := time.Now()
	if lu, ok := app.progress.LastUpdated(); ok {
		printf(cmd, "Last updated: %s\n", tui.Ago(lu, now))
	}
	outln(cmd)

	rows := make([][]string, 0, len(s.Steps))
	for _, step := range slices.Sorted(maps.Keys(s.Steps)) {
		when := "-"
		if ts, ok := app.progress.Timestamp(step); ok {
			when = tui.Ago(ts, now)
		}
		state := "pending"
		if s.Steps[step] {
			state = "completed"
		}
		rows = append(rows, []string{step, tui.State(state), when})
	}
	outln(cmd, tui.Table("", []string{"Milestone", "Status", "Recorded"}, rows))
	return nil
}

func saved(ok bool) error {
	if !ok {
		return fmt.Errorf("failed to save %s", app.progress.Path())
	}
	return nil
}

func runProgressComplete(cmd *cobra.Command, args []string) error {
	if err := saved(app.progress.MarkComplete(args[0])); err != nil {
		return err
	}
	outln(cmd, tui.Success("%s marked complete", args[0]))
	return nil
}

func runProgressIncomplete(cmd *cobra.Command, args []string) error {
	if err := saved(app.progress.MarkIncomplete(args[0])); err != nil {
		return err
	}
	outln(cmd, tui.Success("%s marked incomplete", args[0]))
	return nil
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	if err := saved(app.progress.ResetStep(args[0])); err != nil {
		return err
	}
	outln(cmd, tui.Success("%s reset", args[0]))
	return nil
}

func runProgressResetAll(cmd *cobra.Command, args []string) error {
	if err := saved(app.progress.ResetAll()); err != nil {
		return err
	}
	outln(cmd, tui.Success("All milestones reset"))
	return nil
}
