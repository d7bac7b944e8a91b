package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var adlistsCmd = &cobra.Command{
	Use:   "adlists",
	Short: "Manage blocklist sources",
	RunE:  runAdlistsList,
}

var adlistsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured blocklists",
	RunE:  runAdlistsList,
}

var adlistsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a blocklist URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdlistsAdd,
}

var adlistsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a blocklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdlistsRemove,
}

var adlistsProfileCmd = &cobra.Command{
	Use:   "profile <light|moderate|aggressive>",
	Short: "Replace every blocklist with a curated profile",
	Long: `Replace every configured blocklist with the lists of a curated profile
read from the profiles directory, and record it as the active profile.

Use --update to rebuild gravity straight away.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: appliance.ProfileNames,
	RunE:      runAdlistsProfile,
}

var gravityCmd = &cobra.Command{
	Use:   "gravity",
	Short: "Rebuild the blocking database",
}

var gravityUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download every blocklist and rebuild gravity",
	RunE:  runGravityUpdate,
}

var (
	adlistComment string
	profileUpdate bool
)

func init() {
	rootCmd.AddCommand(adlistsCmd)
	adlistsCmd.AddCommand(adlistsListCmd)
	adlistsCmd.AddCommand(adlistsAddCmd)
	adlistsCmd.AddCommand(adlistsRemoveCmd)
	adlistsCmd.AddCommand(adlistsProfileCmd)

	rootCmd.AddCommand(gravityCmd)
	gravityCmd.AddCommand(gravityUpdateCmd)

	adlistsAddCmd.Flags().StringVar(&adlistComment, "comment", "", "comment stored with the list")
	adlistsProfileCmd.Flags().BoolVar(&profileUpdate, "update", false, "rebuild gravity after switching")
}

func runAdlistsList(cmd *cobra.Command, args []string) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		lists, err := g.Adlists(cmd.Context())
		if err != nil {
			return err
		}
		count, err := g.GravityCount(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(lists))
		for _, l := range lists {
			state := "enabled"
			if !l.Enabled {
				state = "disabled"
			}
			rows = append(rows, []string{strconv.FormatInt(l.ID, 10), tui.Truncate(l.Address, 64), tui.State(state), l.Comment})
		}
		outln(cmd, tui.Table("Blocklists", []string{"ID", "Address", "State", "Comment"}, rows))
		printf(cmd, "Domains on gravity: %s\n", tui.Number(count))
		if p := app.settings.GetString("blocklists", "active_profile", ""); p != "" {
			printf(cmd, "Active profile: %s\n", p)
		}
		return nil
	})
}

func runAdlistsAdd(cmd *cobra.Command, args []string) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		id, err := g.AddAdlist(cmd.Context(), args[0], adlistComment)
		if err != nil {
			return err
		}
		outln(cmd, tui.Success("Added blocklist %d", id))
		outln(cmd, tui.Info("Run 'pimgr gravity update' to download it"))
		return nil
	})
}

func runAdlistsRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.NewValidationError("blocklist id must be a number").WithField("id").WithValue(args[0])
	}
	return withGravity(cmd, func(g *appliance.Gravity) error {
		if err := g.RemoveAdlist(cmd.Context(), id); err != nil {
			return err
		}
		outln(cmd, tui.Success("Removed blocklist %d", id))
		return nil
	})
}

func runAdlistsProfile(cmd *cobra.Command, args []string) error {
	profile, err := appliance.LoadProfile(app.fs, app.cfg.Paths.Profiles(), args[0])
	if err != nil {
		return err
	}
	lists := profile.Adlists()
	if len(lists) == 0 {
		return errors.NewValidationError("profile has no blocklists").WithField("profile").WithValue(profile.Name)
	}

	err = withGravity(cmd, func(g *appliance.Gravity) error {
		return g.ReplaceAdlists(cmd.Context(), lists)
	})
	if err != nil {
		return err
	}

	app.settings.Set("blocklists", "active_profile", profile.Name)
	if !app.settings.Save() {
		outln(cmd, tui.Warn("Profile applied but %s was not saved", app.settings.Path()))
	}

	outln(cmd, tui.Success("Applied %s profile (%d lists)", profile.Name, len(lists)))
	if profile.Description != "" {
		outln(cmd, "  "+profile.Description)
	}
	for _, w := range profile.Warnings {
		outln(cmd, tui.Warn("%s", w))
	}

	if profileUpdate {
		return runGravityUpdate(cmd, nil)
	}
	outln(cmd, tui.Info("Run 'pimgr gravity update' to download the new lists"))
	return nil
}

func runGravityUpdate(cmd *cobra.Command, args []string) error {
	outln(cmd, tui.Info("Updating gravity, this can take a few minutes"))
	err := app.control.UpdateGravity(cmd.Context(), func(line string) {
		outln(cmd, "  "+line)
	})
	if err != nil {
		outln(cmd, tui.Fail("Gravity update failed"))
		return err
	}
	outln(cmd, tui.Success("Gravity updated"))
	return nil
}
