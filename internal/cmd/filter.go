package cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/filter"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Content filter rules",
	Long: `Content filter rules block groups of sites, optionally only during a
daily time window. Rules are kept in the rules file and turned into deny
list entries tagged "` + filter.Comment + `".

Every change is applied to the deny lists right away unless --no-apply is
given. Run 'pimgr filter apply' from cron to follow schedule windows.

Examples:
  pimgr filter block social_media
  pimgr filter block example.com
  pimgr filter add --name "Homework time" --domains 'youtube.com,*.youtube.com' \
      --window 16:00-19:00 --days mon,tue,wed,thu,fri`,
	RunE: runFilterList,
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the rules",
	RunE:  runFilterList,
}

var filterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	RunE:  runFilterAdd,
}

var filterRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilterRemove,
}

var filterToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilterToggle,
}

var filterApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Sync the deny lists with the rules active now",
	RunE:  runFilterApply,
}

var filterCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the built-in categories",
	RunE:  runFilterCategories,
}

var filterBlockCmd = &cobra.Command{
	Use:   "block <category|domain>",
	Short: "Block a built-in category or a domain with its subdomains",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilterBlock,
}

var filterValidateCmd = &cobra.Command{
	Use:     "validate",
	Aliases: []string{"test"},
	Short:   "Check the rules without changing anything",
	RunE:    runFilterValidate,
}

var (
	filterNoApply  bool
	filterName     string
	filterDomains  string
	filterCategory string
	filterDevices  string
	filterWindow   string
	filterDays     string
	filterDisabled bool
)

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.AddCommand(filterListCmd)
	filterCmd.AddCommand(filterAddCmd)
	filterCmd.AddCommand(filterRemoveCmd)
	filterCmd.AddCommand(filterToggleCmd)
	filterCmd.AddCommand(filterApplyCmd)
	filterCmd.AddCommand(filterCategoriesCmd)
	filterCmd.AddCommand(filterBlockCmd)
	filterCmd.AddCommand(filterValidateCmd)

	filterCmd.PersistentFlags().BoolVar(&filterNoApply, "no-apply", false, "only change the rules file")

	f := filterAddCmd.Flags()
	f.StringVar(&filterName, "name", "", "rule name (required)")
	f.StringVar(&filterDomains, "domains", "", "comma-separated domains; *.example.com matches subdomains (required)")
	f.StringVar(&filterCategory, "category", filter.CategoryCustom, "category key")
	f.StringVar(&filterDevices, "devices", "", "comma-separated client IPs (default all devices)")
	f.StringVar(&filterWindow, "window", "", "only block during HH:MM-HH:MM, e.g. "+filter.DefaultWindow)
	f.StringVar(&filterDays, "days", "", "days the window applies, e.g. mon,tue (default every day)")
	f.BoolVar(&filterDisabled, "disabled", false, "store the rule switched off")
	_ = filterAddCmd.MarkFlagRequired("name")
	_ = filterAddCmd.MarkFlagRequired("domains")
}

func parseRuleID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewValidationError("rule id must be a number").WithField("id").WithValue(s)
	}
	return id, nil
}

// applyFilters syncs the deny lists unless --no-apply was given.
func applyFilters(cmd *cobra.Command, store *filter.Store) error {
	if filterNoApply {
		return nil
	}
	return applyRules(cmd, store)
}

func applyRules(cmd *cobra.Command, store *filter.Store) error {
	return withGravity(cmd, func(g *appliance.Gravity) error {
		res, err := filter.Apply(cmd.Context(), g, app.control, store.List(), time.Now(), app.logger)
		if err != nil {
			return err
		}
		for _, r := range res.Rejected {
			outln(cmd, tui.Warn("Skipped invalid entry %s", r))
		}
		if !res.Changed() {
			outln(cmd, tui.Info("Deny lists already match the rules (%d entries)", res.Planned))
			return nil
		}
		outln(cmd, tui.Success("Deny lists updated: %d added, %d removed", len(res.Added), len(res.Removed)))
		if !res.Reloaded {
			outln(cmd, tui.Warn("The resolver did not reload; run 'pimgr maintenance restart-dns'"))
		}
		return nil
	})
}

func runFilterList(cmd *cobra.Command, args []string) error {
	rules := app.filters().List()
	if len(rules) == 0 {
		outln(cmd, tui.Info("No content filter rules. Try 'pimgr filter categories'."))
		return nil
	}
	now := time.Now()
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		state := "disabled"
		switch {
		case r.Enabled && r.Schedule.ActiveAt(now):
			state = "active"
		case r.Enabled:
			state = "inactive"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.ID),
			tui.Truncate(r.Name, 32),
			r.Category,
			strconv.Itoa(len(r.Domains)),
			r.DevicesLabel(),
			r.Schedule.String(),
			tui.State(state),
		})
	}
	outln(cmd, tui.Table("Content filter rules", []string{"ID", "Name", "Category", "Domains", "Devices", "Schedule", "State"}, rows))
	return nil
}

// buildRule turns the add flags into a rule.
func buildRule() (filter.Rule, error) {
	r := filter.Rule{
		Name:     strings.TrimSpace(filterName),
		Category: filterCategory,
		Domains:  splitList(filterDomains),
		Devices:  splitList(filterDevices),
		Enabled:  !filterDisabled,
	}
	if filterWindow != "" {
		start, end, err := filter.ParseWindow(filterWindow)
		if err != nil {
			return filter.Rule{}, errors.NewValidationError(err.Error()).WithField("window")
		}
		r.Schedule = filter.Schedule{Enabled: true, StartTime: start, EndTime: end}
		if filterDays != "" {
			days, err := filter.ParseDays(filterDays)
			if err != nil {
				return filter.Rule{}, errors.NewValidationError(err.Error()).WithField("days")
			}
			r.Schedule.Days = days
		}
	} else if filterDays != "" {
		return filter.Rule{}, errors.NewValidationError("--days needs --window").WithField("days")
	}

	if rep := filter.Validate([]filter.Rule{r}, time.Now()); !rep.OK() {
		return filter.Rule{}, errors.NewValidationError(strings.Join(rep.Problems, "; ")).WithField("rule")
	}
	return r, nil
}

func runFilterAdd(cmd *cobra.Command, args []string) error {
	r, err := buildRule()
	if err != nil {
		return err
	}
	store := app.filters()
	added, err := store.Add(r)
	if err != nil {
		return err
	}
	outln(cmd, tui.Success("Added rule %s", added))
	return applyFilters(cmd, store)
}

func runFilterRemove(cmd *cobra.Command, args []string) error {
	id, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	store := app.filters()
	removed, err := store.Remove(id)
	if err != nil {
		return err
	}
	outln(cmd, tui.Success("Removed rule %s", removed))
	return applyFilters(cmd, store)
}

func runFilterToggle(cmd *cobra.Command, args []string) error {
	id, err := parseRuleID(args[0])
	if err != nil {
		return err
	}
	store := app.filters()
	r, err := store.Toggle(id)
	if err != nil {
		return err
	}
	if r.Enabled {
		outln(cmd, tui.Success("Enabled rule %s", r))
	} else {
		outln(cmd, tui.Success("Disabled rule %s", r))
	}
	return applyFilters(cmd, store)
}

func runFilterApply(cmd *cobra.Command, args []string) error {
	return applyRules(cmd, app.filters())
}

func runFilterCategories(cmd *cobra.Command, args []string) error {
	cats := filter.Categories()
	rows := make([][]string, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, []string{c.Key, c.Name, strconv.Itoa(len(c.Domains))})
	}
	outln(cmd, tui.Table("Categories", []string{"Key", "Name", "Domains"}, rows))
	return nil
}

func runFilterBlock(cmd *cobra.Command, args []string) error {
	store := app.filters()
	var (
		r   filter.Rule
		err error
	)
	if _, ok := filter.CategoryByKey(args[0]); ok {
		r, err = store.QuickBlockCategory(args[0])
	} else {
		if verr := appliance.ValidateDomain(args[0]); verr != nil {
			return errors.NewValidationError("not a category or a domain").
				WithField("target").WithValue(args[0]).WithCause(errors.ErrInvalidDomain)
		}
		r, err = store.QuickBlockDomain(appliance.NormalizeDomain(args[0]))
	}
	if err != nil {
		return err
	}
	outln(cmd, tui.Success("Added rule %s", r))
	return applyFilters(cmd, store)
}

func runFilterValidate(cmd *cobra.Command, args []string) error {
	store := app.filters()
	rep := filter.Validate(store.List(), time.Now())
	outln(cmd, tui.KeyValues([][2]string{
		{"Rules", strconv.Itoa(rep.Total)},
		{"Enabled", strconv.Itoa(rep.Enabled)},
		{"Scheduled", strconv.Itoa(rep.Scheduled)},
		{"Active now", strconv.Itoa(rep.ActiveNow)},
		{"Deny entries", strconv.Itoa(rep.DomainsAffected)},
	}))
	if rep.OK() {
		outln(cmd, tui.Success("All rules are valid"))
		return nil
	}
	for _, p := range rep.Problems {
		outln(cmd, tui.Fail("%s", p))
	}
	return errors.NewValidationError(strconv.Itoa(len(rep.Problems)) + " problem(s) in " + store.Path())
}
