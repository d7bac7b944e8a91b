package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pihole-manager/pimgr/internal/config"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/router"
	"github.com/pihole-manager/pimgr/internal/secret"
	"github.com/pihole-manager/pimgr/internal/settings"
	"github.com/pihole-manager/pimgr/internal/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify appliance settings",
	Long: `View or modify the appliance settings file and pimgr's own runtime
configuration.

Without arguments, displays both.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show settings and runtime configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <section.key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.key> <value>",
	Short: "Change one setting",
	Long: `Change one setting and save the settings file.

Values are read as YAML scalars, so true/false become booleans and digits
become numbers. router.password is encrypted before it is stored.

Examples:
  pimgr config set pihole.web_url http://pi.hole/admin
  pimgr config set router.enabled true
  pimgr config set router.password hunter2
  pimgr config set preferences.top_items_count 20`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the settings are complete",
	RunE:  runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show where pimgr keeps its files",
	RunE:  runConfigPath,
}

var configRouterCmd = &cobra.Command{
	Use:   "router",
	Short: "Show the router connection and optionally test it",
	RunE:  runConfigRouter,
}

var (
	configReveal bool
	routerPing   bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configRouterCmd)

	configGetCmd.Flags().BoolVar(&configReveal, "reveal", false, "decrypt secret values")
	configRouterCmd.Flags().BoolVar(&routerPing, "ping", false, "ping the router after resolving credentials")
}

func isSecret(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

// displayValue hides secrets unless reveal is set.
func displayValue(key string, v settings.Value, reveal bool) string {
	s := v.String()
	if !isSecret(key) || s == "" {
		return s
	}
	if reveal {
		return app.settings.DecryptPassword(s)
	}
	if secret.IsEncrypted(s) {
		return "(encrypted)"
	}
	return "(set, not encrypted)"
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	doc := app.settings.Document()

	outln(cmd, tui.Heading("Settings"))
	printf(cmd, "File: %s\n\n", app.settings.Path())
	for _, name := range doc.Sections() {
		sec := doc.Section(name)
		if sec == nil {
			printf(cmd, "%s: (not a section)\n", name)
			continue
		}
		printf(cmd, "%s:\n", name)
		for _, k := range sec.Keys() {
			v, _ := sec.Get(k)
			printf(cmd, "  %s: %s\n", k, displayValue(k, v, false))
		}
	}

	outln(cmd)
	outln(cmd, tui.Heading("Runtime configuration"))
	if used := viper.ConfigFileUsed(); used != "" {
		printf(cmd, "Config file: %s\n\n", used)
	} else {
		printf(cmd, "Config file: (none - using defaults)\n\n")
	}
	pairs := make([][2]string, 0, len(config.Keys()))
	for _, k := range config.Keys() {
		pairs = append(pairs, [2]string{k, fmt.Sprint(viper.Get(k))})
	}
	outln(cmd, tui.KeyValues(pairs))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	section, key, err := splitKey(args[0])
	if err != nil {
		return err
	}
	v, ok := app.settings.Value(section, key)
	if !ok {
		return errors.NewNotFoundError("setting", args[0])
	}
	outln(cmd, displayValue(key, v, configReveal))
	return nil
}

// parseScalar reads a command-line value the way the settings file would.
func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case bool, int, float64:
		return v
	case nil:
		if s == "" {
			return ""
		}
		return nil
	}
	return s
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	section, key, err := splitKey(args[0])
	if err != nil {
		return err
	}
	value := args[1]

	if section == settings.SectionRouter && key == "password" {
		if err := app.settings.SetRouterPassword(value); err != nil {
			return errors.Wrap(err, "failed to encrypt router password")
		}
	} else {
		app.settings.Set(section, key, parseScalar(value))
	}
	if !app.settings.Save() {
		return fmt.Errorf("failed to save %s", app.settings.Path())
	}

	shown := value
	if isSecret(key) {
		shown = "(hidden)"
	}
	outln(cmd, tui.Success("%s = %s", args[0], shown))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ok, problems := app.settings.Validate()
	if ok {
		outln(cmd, tui.Success("Settings are complete"))
		return nil
	}
	for _, p := range problems {
		outln(cmd, tui.Fail("%s", p))
	}
	return fmt.Errorf("%w: %d problem(s) in %s", errors.ErrNotConfigured, len(problems), app.settings.Path())
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	p := app.cfg.Paths
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none)"
	}
	outln(cmd, tui.KeyValues([][2]string{
		{"Config file", configFile},
		{"Settings", p.Settings()},
		{"Progress", p.Progress()},
		{"Wizard state", p.WizardState()},
		{"Filter rules", p.Rules()},
		{"Profiles", p.Profiles()},
		{"Logs", p.Logs()},
	}))
	return nil
}

func runConfigRouter(cmd *cobra.Command, args []string) error {
	prompt := router.PrompterFunc(func(label string) (string, error) {
		return tui.ReadSecret(cmd.InOrStdin(), out(cmd), label)
	})
	login, err := router.Credentials(app.settings, prompt)
	if err != nil {
		return err
	}
	if login.Prompted {
		app.audit.Input(router.PasswordPrompt, login.Password, true)
	}

	source := "settings"
	if login.Prompted {
		source = "prompt"
	}
	outln(cmd, tui.KeyValues([][2]string{
		{"Router", login.String()},
		{"Password", "from " + source},
	}))

	if routerPing {
		if err := router.Ping(cmd.Context(), app.runner, login.Host); err != nil {
			outln(cmd, tui.Fail("%s unreachable", login.Host))
			return err
		}
		outln(cmd, tui.Success("%s reachable", login.Host))
	}
	return nil
}
