package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/config"
	"github.com/pihole-manager/pimgr/internal/executor"
	"github.com/pihole-manager/pimgr/internal/filter"
	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/health"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/progress"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
	"github.com/pihole-manager/pimgr/internal/settings"
)

// appContext is everything a command needs, opened once per run.
type appContext struct {
	cfg      *config.Config
	fs       afero.Fs
	logger   *logging.Logger
	audit    *sessionlog.Log
	runner   executor.Runner
	control  *appliance.Control
	settings *settings.Store
	progress *progress.Tracker
}

var app *appContext

// newRunner builds the command runner; tests replace it.
var newRunner = func(cfg *config.Config, logger *logging.Logger, audit *sessionlog.Log) executor.Runner {
	return executor.New(
		executor.WithSudo(cfg.Executor.UseSudo),
		executor.WithTimeout(cfg.Executor.Timeout()),
		executor.WithLogger(logger),
		executor.WithSessionLog(audit),
	)
}

func openApp(cmd *cobra.Command, args []string) error {
	closeApp()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Paths.Logs(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: debug log disabled: %v\n", err)
		logger = logging.NopLogger()
	}
	logger = logger.WithCommand(cmd.CommandPath())

	audit, err := sessionlog.Open(cfg.Paths.Logs(), sessionlog.Options{Keep: cfg.Logging.KeepSessions})
	if err != nil {
		logger.Warn("session log disabled", "error", err)
		audit = nil
	} else {
		logger = logger.WithSession(audit.ID())
	}
	audit.Info("command: %s", cmd.CommandPath())

	fs := fsutil.OsFs()
	if migrated, err := progress.MigrateWizardState(fs, cfg.Paths.Progress(), cfg.Paths.WizardState()); err != nil {
		logger.Warn("wizard state migration failed", "error", err)
	} else if migrated {
		logger.Info("progress migrated from wizard state", "path", cfg.Paths.Progress())
		audit.State("migrate", progress.StepSetupComplete, true)
	}

	runner := newRunner(cfg, logger, audit)
	app = &appContext{
		cfg:      cfg,
		fs:       fs,
		logger:   logger,
		audit:    audit,
		runner:   runner,
		control:  appliance.NewControl(runner),
		settings: settings.Open(cfg.Paths.Settings(), settings.WithFs(fs), settings.WithLogger(logger), settings.WithSessionLog(audit)),
		progress: progress.Open(cfg.Paths.Progress(), progress.WithFs(fs), progress.WithLogger(logger), progress.WithSessionLog(audit)),
	}
	logger.Debug("command started", "args", len(args))
	return nil
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.audit.Close(); err != nil {
		app.logger.Warn("failed to close session log", "error", err)
	}
	_ = app.logger.Close()
	app = nil
}

func (a *appContext) gravity(ctx context.Context) (*appliance.Gravity, error) {
	return appliance.OpenGravity(ctx, a.cfg.Appliance.GravityDB, a.logger)
}

func (a *appContext) ftl(ctx context.Context) (*appliance.FTL, error) {
	return appliance.OpenFTL(ctx, a.cfg.Appliance.FTLDB,
		appliance.WithStatsTTL(a.cfg.Appliance.StatsTTL()),
		appliance.WithFTLLogger(a.logger))
}

func (a *appContext) filters() *filter.Store {
	return filter.Open(a.cfg.Paths.Rules(),
		filter.WithFs(a.fs),
		filter.WithLogger(a.logger),
		filter.WithSessionLog(a.audit))
}

// checker builds the health checker. Blocking is probed with a domain
// taken from gravity so the check does not depend on any one list.
func (a *appContext) checker() *health.Checker {
	return health.New(a.runner,
		health.WithResolver(a.cfg.Appliance.DNSAddr),
		health.WithDatabases(a.cfg.Appliance.GravityDB, a.cfg.Appliance.FTLDB),
		health.WithFs(a.fs),
		health.WithLogger(a.logger),
		health.WithBlockCandidates(a.blockCandidates),
	)
}

func (a *appContext) blockCandidates(ctx context.Context) []string {
	candidates := append([]string(nil), health.BlockingDomains...)
	g, err := a.gravity(ctx)
	if err != nil {
		return candidates
	}
	defer g.Close()
	if d, err := g.SampleGravityDomain(ctx); err == nil && d != "" {
		candidates = append([]string{d}, candidates...)
	}
	return candidates
}

// topLimit is the row count for top-N reports: the flag when set, else
// preferences.top_items_count, else 10.
func (a *appContext) topLimit(flag int) int {
	if flag > 0 {
		return flag
	}
	if v, ok := a.settings.Value(settings.SectionPreferences, "top_items_count"); ok {
		if n, ok := v.AsInt(); ok && n > 0 {
			return int(n)
		}
	}
	return 10
}
