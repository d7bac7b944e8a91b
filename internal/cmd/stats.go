package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query statistics from the FTL database",
	Long: `Query statistics read from pihole-FTL.db.

Without a subcommand, prints the summary for --range.

Examples:
  pimgr stats --range 7d
  pimgr stats top-blocked --limit 25
  pimgr stats export --range 30d --output queries.csv`,
	RunE: runStatsSummary,
}

var statsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Total, blocked and cached query counts",
	RunE:  runStatsSummary,
}

var statsTopDomainsCmd = &cobra.Command{
	Use:   "top-domains",
	Short: "Most queried permitted domains",
	RunE:  runStatsTopDomains,
}

var statsTopBlockedCmd = &cobra.Command{
	Use:   "top-blocked",
	Short: "Most queried blocked domains",
	RunE:  runStatsTopBlocked,
}

var statsTopClientsCmd = &cobra.Command{
	Use:   "top-clients",
	Short: "Clients with the most queries",
	RunE:  runStatsTopClients,
}

var statsQueryTypesCmd = &cobra.Command{
	Use:   "query-types",
	Short: "Queries broken down by record type",
	RunE:  runStatsQueryTypes,
}

var statsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Most recent queries",
	RunE:  runStatsRecent,
}

var statsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the query log for --range as CSV",
	RunE:  runStatsExport,
}

var (
	statsRange  string
	statsLimit  int
	statsOutput string
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsSummaryCmd)
	statsCmd.AddCommand(statsTopDomainsCmd)
	statsCmd.AddCommand(statsTopBlockedCmd)
	statsCmd.AddCommand(statsTopClientsCmd)
	statsCmd.AddCommand(statsQueryTypesCmd)
	statsCmd.AddCommand(statsRecentCmd)
	statsCmd.AddCommand(statsExportCmd)

	statsCmd.PersistentFlags().StringVarP(&statsRange, "range", "r", appliance.RangeDay, "time range: 24h, 7d, 30d or all")
	statsCmd.PersistentFlags().IntVarP(&statsLimit, "limit", "n", 0, "rows to show (default preferences.top_items_count, else 10)")
	statsExportCmd.Flags().StringVarP(&statsOutput, "output", "o", "", "write CSV to this file instead of stdout")
}

// withFTL opens the FTL database and resolves --range for fn.
func withFTL(cmd *cobra.Command, fn func(f *appliance.FTL, r appliance.Range) error) error {
	f, err := app.ftl(cmd.Context())
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := f.Range(statsRange)
	if err != nil {
		return err
	}
	return fn(f, r)
}

func runStatsSummary(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		s, err := f.Summary(cmd.Context(), r)
		if err != nil {
			return err
		}
		outln(cmd, tui.Heading("Query summary: "+r.Label))
		outln(cmd, tui.KeyValues([][2]string{
			{"Total queries", tui.Number(s.Total)},
			{"Blocked", fmt.Sprintf("%s (%s)", tui.Number(s.Blocked), tui.Percent(s.PercentBlocked()))},
			{"Permitted", tui.Number(s.Permitted)},
			{"Cached", fmt.Sprintf("%s (%s)", tui.Number(s.Cached), tui.Percent(s.CacheHitRate()))},
			{"Forwarded", tui.Number(s.Forwarded())},
		}))
		return nil
	})
}

func domainRows(counts []appliance.DomainCount) [][]string {
	rows := make([][]string, 0, len(counts))
	for i, c := range counts {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Domain, tui.Number(c.Count)})
	}
	return rows
}

func runStatsTopDomains(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		counts, err := f.TopPermitted(cmd.Context(), r, app.topLimit(statsLimit))
		if err != nil {
			return err
		}
		outln(cmd, tui.Table("Top permitted domains: "+r.Label, []string{"#", "Domain", "Queries"}, domainRows(counts)))
		return nil
	})
}

func runStatsTopBlocked(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		counts, err := f.TopBlocked(cmd.Context(), r, app.topLimit(statsLimit))
		if err != nil {
			return err
		}
		outln(cmd, tui.Table("Top blocked domains: "+r.Label, []string{"#", "Domain", "Queries"}, domainRows(counts)))
		return nil
	})
}

func runStatsTopClients(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		clients, err := f.TopClients(cmd.Context(), r, app.topLimit(statsLimit))
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(clients))
		for i, c := range clients {
			name := c.Name
			if name == "" {
				name = "-"
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), c.IP, name, tui.Number(c.Count)})
		}
		outln(cmd, tui.Table("Top clients: "+r.Label, []string{"#", "Client", "Name", "Queries"}, rows))
		return nil
	})
}

func runStatsQueryTypes(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		types, err := f.QueryTypes(cmd.Context(), r)
		if err != nil {
			return err
		}
		var total int64
		for _, t := range types {
			total += t.Count
		}
		rows := make([][]string, 0, len(types))
		for _, t := range types {
			share := 0.0
			if total > 0 {
				share = float64(t.Count) / float64(total) * 100
			}
			rows = append(rows, []string{t.Name, tui.Number(t.Count), tui.Percent(share)})
		}
		outln(cmd, tui.Table("Query types: "+r.Label, []string{"Type", "Queries", "Share"}, rows))
		return nil
	})
}

func queryRows(queries []appliance.Query) [][]string {
	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{
			q.Time.Format("2006-01-02 15:04:05"),
			appliance.QueryTypeName(q.Type),
			tui.Truncate(q.Domain, 48),
			q.Client,
			string(q.Class()),
		})
	}
	return rows
}

func runStatsRecent(cmd *cobra.Command, args []string) error {
	f, err := app.ftl(cmd.Context())
	if err != nil {
		return err
	}
	defer f.Close()
	queries, err := f.RecentQueries(cmd.Context(), app.topLimit(statsLimit))
	if err != nil {
		return err
	}
	outln(cmd, tui.Table("Recent queries", []string{"Time", "Type", "Domain", "Client", "Status"}, queryRows(queries)))
	return nil
}

func runStatsExport(cmd *cobra.Command, args []string) error {
	return withFTL(cmd, func(f *appliance.FTL, r appliance.Range) error {
		w := out(cmd)
		if statsOutput != "" {
			file, err := os.Create(statsOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", statsOutput, err)
			}
			defer file.Close()
			w = file
		}
		n, err := f.ExportQueries(cmd.Context(), r, w)
		if err != nil {
			return err
		}
		app.audit.Info("exported %d queries (%s) to %s", n, r.Label, exportTarget())
		if statsOutput != "" {
			outln(cmd, tui.Success("Exported %s queries to %s", tui.Number(n), statsOutput))
		}
		return nil
	})
}

func exportTarget() string {
	if statsOutput == "" {
		return "stdout"
	}
	return statsOutput
}

// lastSeen renders a device timestamp.
func lastSeen(t time.Time) string {
	return tui.Ago(t, time.Now())
}
