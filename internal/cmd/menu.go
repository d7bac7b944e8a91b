package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/tui"
)

// menuEntry runs one subcommand from the interactive menu.
type menuEntry struct {
	label string
	cmd   *cobra.Command
	args  []string
}

type menuGroup struct {
	label   string
	entries []menuEntry
}

func menuGroups() []menuGroup {
	return []menuGroup{
		{"Statistics", []menuEntry{
			{"Summary", statsSummaryCmd, nil},
			{"Top permitted domains", statsTopDomainsCmd, nil},
			{"Top blocked domains", statsTopBlockedCmd, nil},
			{"Top clients", statsTopClientsCmd, nil},
			{"Query types", statsQueryTypesCmd, nil},
			{"Recent queries", statsRecentCmd, nil},
		}},
		{"Devices", []menuEntry{
			{"List devices", devicesListCmd, nil},
		}},
		{"Blocklists", []menuEntry{
			{"Show blocklists", adlistsListCmd, nil},
			{"Update gravity", gravityUpdateCmd, nil},
			{"Show allow list", nil, []string{"allow"}},
			{"Show deny list", nil, []string{"deny"}},
		}},
		{"Content filter", []menuEntry{
			{"Show rules", filterListCmd, nil},
			{"Categories", filterCategoriesCmd, nil},
			{"Validate rules", filterValidateCmd, nil},
			{"Apply rules now", filterApplyCmd, nil},
		}},
		{"Health & maintenance", []menuEntry{
			{"Run health check", healthCmd, nil},
			{"Service status", maintenanceServicesCmd, nil},
			{"Pi-hole version", maintenanceVersionCmd, nil},
			{"Restart DNS", maintenanceRestartCmd, nil},
		}},
		{"Setup", []menuEntry{
			{"Setup status", setupStatusCmd, nil},
			{"Run setup", setupRunCmd, nil},
			{"Progress", progressShowCmd, nil},
		}},
		{"Settings", []menuEntry{
			{"Show settings", configShowCmd, nil},
			{"Validate settings", configValidateCmd, nil},
			{"File locations", configPathCmd, nil},
		}},
	}
}

// terminalInput returns the command's input when it is an interactive
// terminal.
func terminalInput(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.InOrStdin().(*os.File)
	return f, ok && tui.IsTerminal(f)
}

// runRoot shows the interactive menu on a terminal and help otherwise.
func runRoot(cmd *cobra.Command, args []string) error {
	in, ok := terminalInput(cmd)
	if !ok {
		return cmd.Help()
	}
	console := tui.Console{In: in, Out: out(cmd)}
	groups := menuGroups()

	labels := make([]string, 0, len(groups)+1)
	for _, g := range groups {
		labels = append(labels, g.label)
	}
	labels = append(labels, "Exit")

	for {
		if p := app.progress.NextStep(); p != "" {
			outln(cmd, tui.Info("%s", p))
		}
		i, err := console.Menu("Pi-hole Manager", labels)
		if errors.Is(err, errors.ErrCanceled) || i == len(groups) {
			app.audit.Menu("Main", "Exit")
			return nil
		}
		if err != nil {
			return err
		}
		app.audit.Menu("Main", labels[i])
		if err := runGroup(cmd, console, groups[i]); err != nil {
			return err
		}
	}
}

func runGroup(cmd *cobra.Command, console tui.Console, g menuGroup) error {
	labels := make([]string, len(g.entries))
	for i, e := range g.entries {
		labels[i] = e.label
	}
	for {
		i, err := console.Menu(g.label, labels)
		if errors.Is(err, errors.ErrCanceled) {
			return nil
		}
		if err != nil {
			return err
		}
		e := g.entries[i]
		app.audit.Menu(g.label, e.label)
		if err := runEntry(cmd, e); err != nil {
			app.audit.Exception(err, e.label)
			fmt.Fprintln(cmd.ErrOrStderr(), tui.Fail("%v", err))
		}
	}
}

func runEntry(cmd *cobra.Command, e menuEntry) error {
	if e.cmd == nil {
		// Allow/deny subtrees are built at init; find them by name.
		sub, _, err := listsCmd.Find(e.args)
		if err != nil {
			return err
		}
		sub.SetOut(cmd.OutOrStdout())
		sub.SetContext(cmd.Context())
		return sub.RunE(sub, nil)
	}
	e.cmd.SetOut(cmd.OutOrStdout())
	e.cmd.SetContext(cmd.Context())
	return e.cmd.RunE(e.cmd, e.args)
}
