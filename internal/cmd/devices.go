package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Clients seen by Pi-hole",
	RunE:  runDevicesList,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known devices",
	RunE:  runDevicesList,
}

var devicesShowCmd = &cobra.Command{
	Use:   "show <ip>",
	Short: "Show one device with its query activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesShow,
}

var devicesRenameCmd = &cobra.Command{
	Use:   "rename <ip> <name>",
	Short: "Give a device a friendly name",
	Args:  cobra.ExactArgs(2),
	RunE:  runDevicesRename,
}

var devicesSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find devices by IP, MAC, name or vendor",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesSearch,
}

var devicesRange string

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesShowCmd)
	devicesCmd.AddCommand(devicesRenameCmd)
	devicesCmd.AddCommand(devicesSearchCmd)

	devicesShowCmd.Flags().StringVarP(&devicesRange, "range", "r", appliance.RangeDay, "time range for activity: 24h, 7d, 30d or all")
}

func deviceRows(devices []appliance.Device) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{d.IP, name, d.HWAddr, tui.Truncate(d.Vendor, 24), lastSeen(d.LastQuery), tui.Number(d.NumQueries)})
	}
	return rows
}

var deviceHeaders = []string{"IP", "Name", "MAC", "Vendor", "Last query", "Queries"}

func runDevicesList(cmd *cobra.Command, args []string) error {
	f, err := app.ftl(cmd.Context())
	if err != nil {
		return err
	}
	defer f.Close()
	devices, err := f.Devices(cmd.Context())
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		outln(cmd, tui.Info("No devices recorded yet"))
		return nil
	}
	outln(cmd, tui.Table("Devices", deviceHeaders, deviceRows(devices)))
	return nil
}

func runDevicesSearch(cmd *cobra.Command, args []string) error {
	f, err := app.ftl(cmd.Context())
	if err != nil {
		return err
	}
	defer f.Close()
	devices, err := f.SearchDevices(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		outln(cmd, tui.Info("No devices match %q", args[0]))
		return nil
	}
	outln(cmd, tui.Table("Devices matching "+args[0], deviceHeaders, deviceRows(devices)))
	return nil
}

func runDevicesShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := app.ftl(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := f.Device(ctx, args[0])
	if err != nil {
		return err
	}
	r, err := f.Range(devicesRange)
	if err != nil {
		return err
	}
	sum, err := f.DeviceSummary(ctx, d.IP, r)
	if err != nil {
		return err
	}

	outln(cmd, tui.Heading(d.String()))
	outln(cmd, tui.KeyValues([][2]string{
		{"MAC", d.HWAddr},
		{"Vendor", d.Vendor},
		{"First seen", lastSeen(d.FirstSeen)},
		{"Last query", lastSeen(d.LastQuery)},
		{"Queries (" + r.Label + ")", tui.Number(sum.Total)},
		{"Blocked", tui.Number(sum.Blocked) + " (" + tui.Percent(sum.PercentBlocked()) + ")"},
	}))

	top, err := f.DeviceTopDomains(ctx, d.IP, r, app.topLimit(0))
	if err != nil {
		return err
	}
	outln(cmd, tui.Table("Top domains", []string{"#", "Domain", "Queries"}, domainRows(top)))

	recent, err := f.DeviceQueries(ctx, d.IP, app.topLimit(0))
	if err != nil {
		return err
	}
	outln(cmd, tui.Table("Recent queries", []string{"Time", "Type", "Domain", "Client", "Status"}, queryRows(recent)))
	return nil
}

func runDevicesRename(cmd *cobra.Command, args []string) error {
	f, err := app.ftl(cmd.Context())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.RenameDevice(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	app.audit.Info("renamed device %s to %q", args[0], args[1])
	outln(cmd, tui.Success("%s is now %q", args[0], args[1]))
	return nil
}
