// Package wizard drives the resumable first-run setup. Each module is run
// in order and its outcome is persisted so an interrupted setup resumes
// where it stopped.
package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/progress"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
)

// Module is one setup stage.
type Module struct {
	Name  string
	Title string
	Run   func(ctx context.Context, env *Env) error
}

// Wizard runs modules and records their state.
type Wizard struct {
	mu       sync.Mutex
	path     string
	fs       afero.Fs
	now      func() time.Time
	modules  []Module
	env      *Env
	progress *progress.Tracker
	logger   *logging.Logger
	audit    *sessionlog.Log
	state    State
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithFs replaces the filesystem holding the state file.
func WithFs(fs afero.Fs) Option { return func(w *Wizard) { w.fs = fs } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(w *Wizard) { w.now = now } }

// WithModules replaces DefaultModules.
func WithModules(mods ...Module) Option { return func(w *Wizard) { w.modules = mods } }

// WithProgress marks setup_complete in t once every module has completed.
func WithProgress(t *progress.Tracker) Option { return func(w *Wizard) { w.progress = t } }

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(w *Wizard) { w.logger = l } }

// WithSessionLog records module transitions in the session log.
func WithSessionLog(l *sessionlog.Log) Option { return func(w *Wizard) { w.audit = l } }

// New loads the wizard state at path. A missing or corrupt file starts a
// fresh setup.
func New(path string, env *Env, opts ...Option) *Wizard {
	w := &Wizard{
		path:    path,
		fs:      fsutil.OsFs(),
		now:     time.Now,
		modules: DefaultModules(),
		env:     env,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.env == nil {
		w.env = &Env{}
	}
	w.logger = w.logger.WithComponent("wizard")
	w.state, _ = readState(w.fs, w.path, w.names())
	return w
}

func (w *Wizard) names() []string {
	out := make([]string, len(w.modules))
	for i, m := range w.modules {
		out[i] = m.Name
	}
	return out
}

// Path returns the state file path.
func (w *Wizard) Path() string { return w.path }

// Modules returns the modules in run order.
func (w *Wizard) Modules() []Module {
	return append([]Module(nil), w.modules...)
}

// State returns a copy of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Module returns the state of name.
func (w *Wizard) Module(name string) (ModuleState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.state.Modules[name]
	if !ok {
		return ModuleState{}, false
	}
	return *m, true
}

// IsComplete reports whether name has completed.
func (w *Wizard) IsComplete(name string) bool {
	m, ok := w.Module(name)
	return ok && m.Status == StatusCompleted
}

// AllComplete reports whether every module has completed.
func (w *Wizard) AllComplete() bool {
	for _, m := range w.modules {
		if !w.IsComplete(m.Name) {
			return false
		}
	}
	return true
}

func (w *Wizard) lookup(name string) (Module, error) {
	for _, m := range w.modules {
		if m.Name == name {
			return m, nil
		}
	}
	return Module{}, errors.NewNotFoundError("setup module", name).WithCause(errors.ErrStepUnknown)
}

func (w *Wizard) stamp() *string {
	s := w.now().Format(time.RFC3339)
	return &s
}

func (w *Wizard) saveLocked() error {
	if err := writeState(w.fs, w.path, w.state); err != nil {
		w.logger.Error("failed to save wizard state", "path", w.path, "error", err)
		return fmt.Errorf("failed to save wizard state: %w", err)
	}
	return nil
}

func (w *Wizard) update(fn func(s *State)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.state)
	return w.saveLocked()
}

// Run runs one module. Success marks it completed with a timestamp;
// failure marks it failed with the error message. The module's error is
// returned; a state file that cannot be written is only logged.
func (w *Wizard) Run(ctx context.Context, name string) error {
	mod, err := w.lookup(name)
	if err != nil {
		return err
	}
	w.audit.Separator(mod.Title)
	w.logger.Info("running setup module", "module", name)

	runErr := ctx.Err()
	if runErr == nil && mod.Run != nil {
		runErr = safeRun(ctx, mod, w.env)
	}

	_ = w.update(func(s *State) {
		m := s.Modules[name]
		if runErr != nil {
			m.Status = StatusFailed
			m.Error = runErr.Error()
			return
		}
		m.Status = StatusCompleted
		m.CompletedAt = w.stamp()
		m.Error = ""
	})

	if runErr != nil {
		w.audit.State("failed", name, runErr.Error())
		w.logger.Warn("setup module failed", "module", name, "error", runErr)
		return fmt.Errorf("%s: %w", mod.Title, runErr)
	}
	w.audit.State("complete", name, true)
	return nil
}

func safeRun(ctx context.Context, mod Module, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return mod.Run(ctx, env)
}

// RetryFunc decides whether a failed module is run once more.
type RetryFunc func(name string, err error) bool

// Outcome summarizes a RunAll pass.
type Outcome struct {
	Ran       []string
	Skipped   []string
	Failed    []string
	Completed bool
	// ProgressSaved reports whether setup_complete reached the progress
	// file. It is false when no tracker is attached.
	ProgressSaved bool
}

// RunAll runs every module not yet completed, in order. A failed module
// is retried once when retry approves; if the retry fails too, setup stops
// there. A declined retry moves on to the next module. Setup is marked
// completed when the pass reaches the end, and setup_complete is recorded
// in the progress tracker when every module has completed.
func (w *Wizard) RunAll(ctx context.Context, retry RetryFunc) (Outcome, error) {
	var out Outcome
	_ = w.update(func(s *State) { s.SetupStarted = w.stamp() })
	w.audit.State("start", "setup", w.path)

	for _, mod := range w.modules {
		if w.IsComplete(mod.Name) {
			out.Skipped = append(out.Skipped, mod.Name)
			continue
		}
		out.Ran = append(out.Ran, mod.Name)
		err := w.Run(ctx, mod.Name)
		if err != nil && ctx.Err() == nil && retry != nil && retry(mod.Name, err) {
			err = w.Run(ctx, mod.Name)
			if err != nil {
				out.Failed = append(out.Failed, mod.Name)
				return out, err
			}
		}
		if err != nil {
			out.Failed = append(out.Failed, mod.Name)
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
		}
	}

	_ = w.update(func(s *State) { s.SetupCompleted = w.stamp() })
	if w.AllComplete() {
		out.Completed = true
		if w.progress != nil {
			out.ProgressSaved = w.progress.MarkComplete(progress.StepSetupComplete)
			if !out.ProgressSaved {
				w.logger.Warn("setup complete but progress was not saved", "path", w.progress.Path())
			}
		}
	}
	w.logger.Info("setup pass finished", "completed", out.Completed, "failed", len(out.Failed))
	return out, nil
}

// Reset deletes the state file and starts over with every module pending.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fs.Remove(w.path); err != nil && fsutil.Exists(w.fs, w.path) {
		return fmt.Errorf("failed to remove wizard state: %w", err)
	}
	w.state = newState(w.names())
	w.audit.State("reset", "setup", w.path)
	return nil
}
