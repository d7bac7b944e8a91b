package wizard

import (
	"encoding/json"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/fsutil"
)

// Status is a module's progress.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ModuleState is the persisted record for one module.
type ModuleState struct {
	Status      Status  `json:"status"`
	CompletedAt *string `json:"completed_at"`
	Error       string  `json:"error,omitempty"`
}

// State is the wizard state file.
type State struct {
	Modules        map[string]*ModuleState `json:"modules"`
	SetupStarted   *string                 `json:"setup_started"`
	SetupCompleted *string                 `json:"setup_completed"`
}

func newState(names []string) State {
	s := State{Modules: make(map[string]*ModuleState, len(names))}
	s.ensure(names)
	return s
}

// ensure adds a pending record for every name missing one.
func (s *State) ensure(names []string) {
	if s.Modules == nil {
		s.Modules = make(map[string]*ModuleState, len(names))
	}
	for _, n := range names {
		if m, ok := s.Modules[n]; !ok || m == nil {
			s.Modules[n] = &ModuleState{Status: StatusPending}
		}
	}
}

func (s State) clone() State {
	out := State{Modules: make(map[string]*ModuleState, len(s.Modules))}
	for k, v := range s.Modules {
		cp := *v
		if v.CompletedAt != nil {
			at := *v.CompletedAt
			cp.CompletedAt = &at
		}
		out.Modules[k] = &cp
	}
	if s.SetupStarted != nil {
		v := *s.SetupStarted
		out.SetupStarted = &v
	}
	if s.SetupCompleted != nil {
		v := *s.SetupCompleted
		out.SetupCompleted = &v
	}
	return out
}

// CompletedTime parses CompletedAt.
func (m ModuleState) CompletedTime() (time.Time, bool) {
	if m.CompletedAt == nil || *m.CompletedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *m.CompletedAt)
	return t, err == nil
}

// readState loads path; a missing or unreadable file yields a fresh state.
func readState(fs afero.Fs, path string, names []string) (State, bool) {
	data, err := fsutil.ReadFile(fs, path)
	if err != nil {
		return newState(names), false
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return newState(names), false
	}
	s.ensure(names)
	return s, true
}

func writeState(fs afero.Fs, path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, path, data, fsutil.PrivatePerm)
}
