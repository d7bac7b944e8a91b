package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Manage the allow and deny lists",
	Long: `Manage the allow and deny lists in gravity.db.

Changes are picked up by the resolver immediately.

Examples:
  pimgr lists deny add ads.example.com tracker.example.net
  pimgr lists deny add --regex '(^|\.)doubleclick\.net$'
  pimgr lists allow list
  pimgr lists allow remove 12`,
}

// listFlags holds the flags of one allow/deny subtree.
type listFlags struct {
	regex   bool
	comment string
}

func init() {
	rootCmd.AddCommand(listsCmd)
	listsCmd.AddCommand(newListCmd(appliance.Allow, "allow", "Domains that are never blocked"))
	listsCmd.AddCommand(newListCmd(appliance.Deny, "deny", "Domains that are always blocked"))
}

func newListCmd(list appliance.ListType, use, short string) *cobra.Command {
	flags := &listFlags{}
	parent := &cobra.Command{Use: use, Short: short}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListShow(cmd, list)
		},
	}
	parent.RunE = listCmd.RunE

	addCmd := &cobra.Command{
		Use:   "add <domain>...",
		Short: "Add domains or patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListAdd(cmd, appliance.KindFor(list, flags.regex), args, flags.comment)
		},
	}
	addCmd.Flags().BoolVar(&flags.regex, "regex", false, "treat arguments as regular expressions")
	addCmd.Flags().StringVar(&flags.comment, "comment", "Added by pimgr", "comment stored with each entry")

	removeCmd := &cobra.Command{
		Use:   "remove <id|domain>",
		Short: "Remove one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRemove(cmd, list, args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every exact entry, or every pattern with --regex",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListClear(cmd, appliance.KindFor(list, flags.regex))
		},
	}
	clearCmd.Flags().BoolVar(&flags.regex, "regex", false, "clear the regex list instead")

	parent.AddCommand(listCmd, addCmd, removeCmd, clearCmd)
	return parent
}

func withGravity(cmd *cobra.Command, fn func(g *appliance.Gravity) error) error {
	g, err := app.gravity(cmd.Context())
	if err != nil {
		return err
	}
	defer g.Close()
	return fn(g)
}

func reloadLists(cmd *cobra.Command) {
	if err := app.control.ReloadLists(cmd.Context()); err != nil {
		app.logger.Warn("reload lists failed", "error", err)
		outln(cmd, tui.Warn("Saved, but the resolver did not reload: %v", err))
	}
}

func runListShow(cmd *cobra.Command, list appliance.ListType) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		var rows [][]string
		for _, kind := range []appliance.DomainKind{appliance.KindFor(list, false), appliance.KindFor(list, true)} {
			entries, err := g.Domains(cmd.Context(), kind)
			if err != nil {
				return err
			}
			for _, e := range entries {
				state := "enabled"
				if !e.Enabled {
					state = "disabled"
				}
				rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.Domain, e.Kind.String(), tui.State(state), e.Comment})
			}
		}
		title := strings.ToUpper(string(list[:1])) + string(list[1:]) + " list"
		if len(rows) == 0 {
			outln(cmd, tui.Info("%s is empty", title))
			return nil
		}
		outln(cmd, tui.Table(title, []string{"ID", "Domain", "Type", "State", "Comment"}, rows))
		return nil
	})
}

func runListAdd(cmd *cobra.Command, kind appliance.DomainKind, values []string, comment string) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		added, rejected, err := g.AddDomains(cmd.Context(), kind, values, comment)
		if err != nil {
			return err
		}
		for _, r := range rejected {
			outln(cmd, tui.Warn("Rejected %s", r))
		}
		if added > 0 {
			outln(cmd, tui.Success("Added %d %s entries", added, kind))
			reloadLists(cmd)
		}
		if added == 0 && len(rejected) > 0 {
			return errors.NewValidationError("no entries were added").WithCause(errors.ErrInvalidDomain)
		}
		return nil
	})
}

// runListRemove accepts either a row ID or the domain itself.
func runListRemove(cmd *cobra.Command, list appliance.ListType, target string) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			id = 0
			for _, kind := range []appliance.DomainKind{appliance.KindFor(list, false), appliance.KindFor(list, true)} {
				entries, err := g.Domains(ctx, kind)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if e.Domain == target || e.Domain == appliance.NormalizeDomain(target) {
						id = e.ID
						break
					}
				}
				if id != 0 {
					break
				}
			}
			if id == 0 {
				return errors.NewNotFoundError(string(list)+" list entry", target)
			}
		}

		entry, err := g.DomainByID(ctx, id)
		if err != nil {
			return err
		}
		if entry.Kind.List() != list {
			return errors.NewValidationError("entry belongs to the " + string(entry.Kind.List()) + " list").
				WithField("id").WithValue(id)
		}
		if _, err := g.RemoveDomain(ctx, id); err != nil {
			return err
		}
		outln(cmd, tui.Success("Removed %s (%s)", entry.Domain, entry.Kind))
		reloadLists(cmd)
		return nil
	})
}

func runListClear(cmd *cobra.Command, kind appliance.DomainKind) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		n, err := g.ClearDomains(cmd.Context(), kind)
		if err != nil {
			return err
		}
		outln(cmd, tui.Success("Removed %d %s entries", n, kind))
		if n > 0 {
			reloadLists(cmd)
		}
		return nil
	})
}
