package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/progress"
	"github.com/pihole-manager/pimgr/internal/tui"
	"github.com/pihole-manager/pimgr/internal/wizard"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-run appliance setup",
	Long: `Run the setup wizard: security hardening, network configuration, SSH,
Pi-hole installation, blocklists, performance tuning and a final health
check. Each module's outcome is saved, so an interrupted setup resumes
where it stopped.

Without a subcommand, shows the setup status.`,
	RunE: runSetupStatus,
}

var setupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every setup module",
	RunE:  runSetupStatus,
}

var setupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every module that has not completed",
	RunE:  runSetupRun,
}

var setupModuleCmd = &cobra.Command{
	Use:   "module <name>",
	Short: "Run one module, even if it already completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupModule,
}

var setupResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget module results and start over",
	RunE:  runSetupReset,
}

// Retry policies for a failed module.
const (
	retryAsk    = "ask"
	retryAlways = "always"
	retryNever  = "never"
)

var setupRetry string

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.AddCommand(setupStatusCmd)
	setupCmd.AddCommand(setupRunCmd)
	setupCmd.AddCommand(setupModuleCmd)
	setupCmd.AddCommand(setupResetCmd)

	setupRunCmd.Flags().StringVar(&setupRetry, "retry", retryAsk, "retry a failed module once: ask, always or never")
}

func newWizard(cmd *cobra.Command) *wizard.Wizard {
	env := &wizard.Env{
		Runner:      app.runner,
		Settings:    app.settings,
		Fs:          app.fs,
		GravityDB:   app.cfg.Appliance.GravityDB,
		ProfilesDir: app.cfg.Paths.Profiles(),
		Health:      app.checker(),
		Output:      func(line string) { outln(cmd, "  "+line) },
		Logger:      app.logger,
	}
	return wizard.New(app.cfg.Paths.WizardState(), env,
		wizard.WithFs(app.fs),
		wizard.WithProgress(app.progress),
		wizard.WithLogger(app.logger),
		wizard.WithSessionLog(app.audit))
}

func runSetupStatus(cmd *cobra.Command, args []string) error {
	w := newWizard(cmd)
	st := w.State()
	now := time.Now()

	rows := make([][]string, 0, len(w.Modules()))
	done := 0
	for i, m := range w.Modules() {
		ms, _ := w.Module(m.Name)
		when := "-"
		if ts, ok := ms.CompletedTime(); ok {
			when = tui.Ago(ts, now)
		}
		if ms.Status == wizard.StatusCompleted {
			done++
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), m.Title, m.Name, tui.State(string(ms.Status)), when, tui.Truncate(ms.Error, 40)})
	}
	outln(cmd, tui.Table("Setup modules", []string{"#", "Module", "Name", "Status", "Completed", "Error"}, rows))
	printf(cmd, "%d of %d modules completed\n", done, len(rows))
	if st.SetupStarted == nil {
		outln(cmd, tui.Info("Setup has not been started. Run 'pimgr setup run'."))
	}
	return nil
}

// retryFunc decides what happens when a module fails.
func retryFunc(cmd *cobra.Command) (wizard.RetryFunc, error) {
	switch setupRetry {
	case retryAlways:
		return func(string, error) bool { return true }, nil
	case retryNever:
		return func(string, error) bool { return false }, nil
	case retryAsk:
		in, ok := terminalInput(cmd)
		if !ok {
			return func(string, error) bool { return false }, nil
		}
		console := tui.Console{In: in, Out: out(cmd)}
		return func(name string, err error) bool {
			outln(cmd, tui.Fail("%v", err))
			yes, cerr := console.Confirm("Retry "+name+"?", true)
			app.audit.Input("Retry "+name, strconv.FormatBool(yes), false)
			return cerr == nil && yes
		}, nil
	}
	return nil, errors.NewValidationError("retry must be ask, always or never").WithField("retry").WithValue(setupRetry)
}

func runSetupRun(cmd *cobra.Command, args []string) error {
	retry, err := retryFunc(cmd)
	if err != nil {
		return err
	}
	w := newWizard(cmd)
	outln(cmd, tui.Heading("Pi-hole appliance setup"))
	app.audit.Separator("setup")

	res, err := w.RunAll(cmd.Context(), retry)
	outln(cmd)
	for _, name := range res.Skipped {
		outln(cmd, tui.Info("%s already completed", name))
	}
	for _, name := range res.Failed {
		ms, _ := w.Module(name)
		outln(cmd, tui.Fail("%s: %s", name, ms.Error))
	}
	if err != nil {
		return err
	}
	if res.Completed {
		outln(cmd, tui.Success("Setup complete"))
		if !res.ProgressSaved {
			outln(cmd, tui.Warn("Could not record setup_complete in %s", app.progress.Path()))
		}
		return nil
	}
	return errors.Wrapf(errors.ErrCommandFailed, "setup incomplete, %d module(s) failed; rerun 'pimgr setup run' to resume", len(res.Failed))
}

func runSetupModule(cmd *cobra.Command, args []string) error {
	w := newWizard(cmd)
	if err := w.Run(cmd.Context(), args[0]); err != nil {
		return err
	}
	outln(cmd, tui.Success("%s completed", args[0]))
	if w.AllComplete() && !app.progress.IsSetupComplete() {
		outln(cmd, tui.Success("Setup complete"))
		if !app.progress.MarkComplete(progress.StepSetupComplete) {
			outln(cmd, tui.Warn("Could not record setup_complete in %s", app.progress.Path()))
		}
	}
	return nil
}

func runSetupReset(cmd *cobra.Command, args []string) error {
	w := newWizard(cmd)
	if err := w.Reset(); err != nil {
		return err
	}
	outln(cmd, tui.Success("Setup state cleared"))
	return nil
}
