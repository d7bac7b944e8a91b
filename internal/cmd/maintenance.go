package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/tui"
)

var maintenanceCmd = &cobra.Command{
	Use:     "maintenance",
	Aliases: []string{"maint"},
	Short:   "Pi-hole service maintenance",
}

var maintenanceVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show Pi-hole component versions",
	RunE:  runMaintenanceVersion,
}

var maintenanceUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Upgrade Pi-hole",
	RunE:  runMaintenanceUpdate,
}

var maintenanceRestartCmd = &cobra.Command{
	Use:   "restart-dns",
	Short: "Restart the DNS resolver",
	RunE:  runMaintenanceRestart,
}

var maintenanceFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Empty the query log",
	RunE:  runMaintenanceFlush,
}

var maintenanceServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show the state of the Pi-hole services",
	RunE:  runMaintenanceServices,
}

var maintenanceEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn blocking on",
	RunE:  runMaintenanceEnable,
}

var maintenanceDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn blocking off, optionally for a limited time",
	RunE:  runMaintenanceDisable,
}

var disableFor time.Duration

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.AddCommand(maintenanceVersionCmd)
	maintenanceCmd.AddCommand(maintenanceUpdateCmd)
	maintenanceCmd.AddCommand(maintenanceRestartCmd)
	maintenanceCmd.AddCommand(maintenanceFlushCmd)
	maintenanceCmd.AddCommand(maintenanceServicesCmd)
	maintenanceCmd.AddCommand(maintenanceEnableCmd)
	maintenanceCmd.AddCommand(maintenanceDisableCmd)

	maintenanceDisableCmd.Flags().DurationVar(&disableFor, "for", 0, "re-enable automatically after this long, e.g. 5m")
}

func runMaintenanceVersion(cmd *cobra.Command, args []string) error {
	v, err := app.control.Version(cmd.Context())
	if err != nil {
		return err
	}
	outln(cmd, v)
	return nil
}

func runMaintenanceUpdate(cmd *cobra.Command, args []string) error {
	err := app.control.Update(cmd.Context(), func(line string) {
		outln(cmd, "  "+line)
	})
	if err != nil {
		outln(cmd, tui.Fail("Pi-hole update failed"))
		return err
	}
	outln(cmd, tui.Success("Pi-hole updated"))
	return nil
}

func runMaintenanceRestart(cmd *cobra.Command, args []string) error {
	if err := app.control.RestartDNS(cmd.Context()); err != nil {
		return err
	}
	outln(cmd, tui.Success("DNS resolver restarted"))
	return nil
}

func runMaintenanceFlush(cmd *cobra.Command, args []string) error {
	if err := app.control.FlushLogs(cmd.Context()); err != nil {
		return err
	}
	outln(cmd, tui.Success("Query log flushed"))
	return nil
}

func runMaintenanceServices(cmd *cobra.Command, args []string) error {
	states := app.control.ServiceStatus(cmd.Context())
	rows := make([][]string, 0, len(states))
	for _, s := range states {
		state := "inactive"
		if s.Active {
			state = "active"
		}
		rows = append(rows, []string{s.Name, tui.State(state), s.State})
	}
	outln(cmd, tui.Table("Services", []string{"Service", "Status", "systemd"}, rows))
	return nil
}

func runMaintenanceEnable(cmd *cobra.Command, args []string) error {
	if err := app.control.SetBlocking(cmd.Context(), true, 0); err != nil {
		return err
	}
	outln(cmd, tui.Success("Blocking enabled"))
	return nil
}

func runMaintenanceDisable(cmd *cobra.Command, args []string) error {
	if err := app.control.SetBlocking(cmd.Context(), false, disableFor); err != nil {
		return err
	}
	if disableFor > 0 {
		outln(cmd, tui.Warn("Blocking disabled for %s", disableFor))
		return nil
	}
	outln(cmd, tui.Warn("Blocking disabled until 'pimgr maintenance enable'"))
	return nil
}
