package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pihole-manager/pimgr/internal/config"
	"github.com/pihole-manager/pimgr/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "pimgr",
	Short: "Pi-hole appliance manager",
	Long: `pimgr configures and operates a Pi-hole appliance: first-time setup,
allow and deny lists, blocklist profiles, content filter rules, query
statistics and health diagnostics.

Run without arguments on a terminal to get the interactive menu.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: openApp,
}

// Execute runs the root command and releases the run's logs.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && app != nil {
		app.audit.Exception(err, "command failed")
		app.logger.Error("command failed", "error", err)
	}
	closeApp()
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.RunE = runRoot

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/pimgr/pimgr.yaml)")
	rootCmd.PersistentFlags().String("root", "", "install root holding settings, state and logs (default "+config.DefaultInstallRoot+")")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with PIMGR_* overrides")
	rootCmd.PersistentFlags().Bool("debug", false, "write debug-level entries to the debug log")
}

// bindFlags is repeated on every initConfig because viper.Reset drops
// bindings.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("env_file", flags.Lookup("env-file"))
	_ = viper.BindPFlag("paths.install_root", flags.Lookup("root"))
}

func initConfig() {
	config.SetDefaults()
	bindFlags()

	if f := viper.GetString("env_file"); f != "" {
		if err := config.LoadDotEnv(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", f, err)
		}
	}

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pimgr")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("/etc/pimgr")
	}

	config.BindEnv(viper.GetViper())

	// A missing config file is fine; defaults and env still apply.
	_ = viper.ReadInConfig()
}

// out is where a command writes its report.
func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(out(cmd), format, args...)
}

func outln(cmd *cobra.Command, args ...any) {
	fmt.Fprintln(out(cmd), args...)
}

// splitKey turns "section.key" into its parts.
func splitKey(s string) (string, string, error) {
	section, key, ok := strings.Cut(s, ".")
	if !ok || section == "" || key == "" {
		return "", "", errors.NewValidationError("key must look like section.key").WithField("key").WithValue(s)
	}
	return section, key, nil
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
