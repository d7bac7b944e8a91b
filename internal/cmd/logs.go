package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter pimgr's debug log.

Examples:
  # Show the last 50 entries
  pimgr logs

  # Only warnings and errors from the last hour
  pimgr logs --level warn --since 1h

  # Entries from the executor mentioning gravity
  pimgr logs --component executor --grep gravity`,
	RunE: runLogs,
}

var logsSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List session logs, newest first",
	RunE:  runLogsSessions,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     time.Duration
	logsGrep      string
	logsComponent string
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsSessionsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "only entries newer than this, e.g. 1h or 30m")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "only entries from this component, e.g. executor")
}

func runLogs(cmd *cobra.Command, args []string) error {
	entries, err := logging.ReadEntries(app.cfg.Paths.Logs())
	if err != nil {
		return err
	}
	f := logging.Filter{
		MinLevel:  logsLevel,
		Component: logsComponent,
		Contains:  logsGrep,
	}
	if logsSince > 0 {
		f.Since = time.Now().Add(-logsSince)
	}
	entries = logging.FilterEntries(entries, f)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	for _, e := range entries {
		outln(cmd, e.String())
	}
	return nil
}

func runLogsSessions(cmd *cobra.Command, args []string) error {
	dir := app.cfg.Paths.Logs()
	matches, err := filepath.Glob(filepath.Join(dir, "[0-9]*.log"))
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	now := time.Now()
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		current := ""
		if m == app.audit.Path() {
			current = "current"
		}
		rows = append(rows, []string{filepath.Base(m), tui.Bytes(uint64(info.Size())), tui.Ago(info.ModTime(), now), current})
	}
	outln(cmd, tui.Table("Session logs in "+dir, []string{"File", "Size", "Modified", ""}, rows))
	return nil
}
