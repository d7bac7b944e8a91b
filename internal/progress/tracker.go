// Package progress tracks named setup milestones in a small JSON document so
// an interrupted setup can resume and the menu can show what is left.
//
// Like the settings store it never fails loudly: a missing or corrupt file
// reads as a fresh document and every mutation reports whether it was
// persisted.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
)

// DefaultPath is where the tracker lives on the appliance.
const DefaultPath = "/opt/pihole-manager/state.json"

// StepSetupComplete is the milestone set when the setup wizard finishes.
const StepSetupComplete = "setup_complete"

// NextStepSetup is the hint shown while setup is outstanding.
const NextStepSetup = "Run initial setup (pimgr setup run)"

// Document is the persisted form.
type Document struct {
	Setup      map[string]bool   `json:"setup"`
	Timestamps map[string]string `json:"timestamps"`
	Metadata   Metadata          `json:"metadata"`
}

// Metadata records when the document was created and last changed.
type Metadata struct {
	CreatedAt   string  `json:"created_at"`
	LastUpdated *string `json:"last_updated"`
}

func (d Document) clone() Document {
	c := Document{
		Setup:      make(map[string]bool, len(d.Setup)),
		Timestamps: make(map[string]string, len(d.Timestamps)),
		Metadata:   Metadata{CreatedAt: d.Metadata.CreatedAt},
	}
	for k, v := range d.Setup {
		c.Setup[k] = v
	}
	for k, v := range d.Timestamps {
		c.Timestamps[k] = v
	}
	if d.Metadata.LastUpdated != nil {
		lu := *d.Metadata.LastUpdated
		c.Metadata.LastUpdated = &lu
	}
	return c
}

// Summary is the read-only view shown by "pimgr progress show".
type Summary struct {
	ProgressPercent int             `json:"progress_percent"`
	NextStep        string          `json:"next_step,omitempty"`
	IsComplete      bool            `json:"is_complete"`
	Steps           map[string]bool `json:"steps"`
	LastUpdated     string          `json:"last_updated,omitempty"`
}

// Tracker owns one progress file. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	doc    Document
	now    func() time.Time
	logger *logging.Logger
	audit  *sessionlog.Log
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFs replaces the filesystem.
func WithFs(fs afero.Fs) Option { return func(t *Tracker) { t.fs = fs } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithSessionLog records milestone changes in the session log.
func WithSessionLog(l *sessionlog.Log) Option { return func(t *Tracker) { t.audit = l } }

// Open creates a Tracker for path and loads it.
func Open(path string, opts ...Option) *Tracker {
	t := &Tracker{
		fs:     fsutil.OsFs(),
		path:   path,
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("progress")
	t.Load()
	return t
}

// Path returns the progress file path.
func (t *Tracker) Path() string { return t.path }

func (t *Tracker) stamp() string {
	return t.now().Format(time.RFC3339)
}

func (t *Tracker) defaultDocument() Document {
	return Document{
		Setup:      map[string]bool{StepSetupComplete: false},
		Timestamps: map[string]string{},
		Metadata:   Metadata{CreatedAt: t.stamp()},
	}
}

// Load re-reads the file and returns a copy of the document.
func (t *Tracker) Load() Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc = t.read()
	return t.doc.clone()
}

func (t *Tracker) read() Document {
	data, err := fsutil.ReadFile(t.fs, t.path)
	if err != nil {
		t.logger.Info("using fresh progress document", "path", t.path, "reason", err.Error())
		return t.defaultDocument()
	}
	doc, err := decode(data)
	if err != nil {
		t.logger.Info("using fresh progress document", "path", t.path, "reason", err.Error())
		return t.defaultDocument()
	}
	if doc.Setup == nil {
		doc.Setup = map[string]bool{}
	}
	if doc.Timestamps == nil {
		doc.Timestamps = map[string]string{}
	}
	return doc
}

// decode rejects empty, null and {} documents along with malformed JSON.
func decode(data []byte) (Document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Document{}, fmt.Errorf("failed to parse progress: %w", err)
	}
	if len(probe) == 0 {
		return Document{}, fmt.Errorf("progress document is empty")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse progress: %w", err)
	}
	return doc, nil
}

// Save writes the document and reports success.
func (t *Tracker) Save() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() bool {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.doc); err != nil {
		t.logger.Error("failed to encode progress", "error", err)
		return false
	}
	if err := fsutil.WriteFileAtomic(t.fs, t.path, buf.Bytes(), fsutil.PrivatePerm); err != nil {
		t.logger.Error("failed to save progress", "path", t.path, "error", err)
		t.audit.Status("error", "Failed to save progress: "+err.Error())
		return false
	}
	return true
}

func (t *Tracker) touch() {
	s := t.stamp()
	t.doc.Metadata.LastUpdated = &s
}

// IsComplete reports whether step is marked done. Unknown steps are not.
func (t *Tracker) IsComplete(step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Setup[step]
}

// MarkComplete sets step, stamps it with the current time and saves.
// Marking an already complete step refreshes its timestamp.
func (t *Tracker) MarkComplete(step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.Setup[step] = true
	t.doc.Timestamps[step] = t.stamp()
	t.touch()
	t.audit.State("mark_complete", step, true)
	return t.saveLocked()
}

// MarkIncomplete clears step and saves. Its timestamp and last_updated are
// left as they were; use ResetStep to clear them too.
func (t *Tracker) MarkIncomplete(step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.Setup[step] = false
	t.audit.State("mark_incomplete", step, false)
	return t.saveLocked()
}

// ResetStep clears step and its timestamp so it runs again, then saves.
func (t *Tracker) ResetStep(step string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc.Setup[step] = false
	delete(t.doc.Timestamps, step)
	t.touch()
	t.audit.State("reset", step, false)
	return t.saveLocked()
}

// ResetAll replaces the document with a fresh one and saves.
func (t *Tracker) ResetAll() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc = t.defaultDocument()
	t.audit.State("reset_all", "all", false)
	return t.saveLocked()
}

// IsSetupComplete reports whether the setup milestone is set.
func (t *Tracker) IsSetupComplete() bool {
	return t.IsComplete(StepSetupComplete)
}

// ProgressPercent is 100 once setup is complete and 0 before.
func (t *Tracker) ProgressPercent() int {
	if t.IsSetupComplete() {
		return 100
	}
	return 0
}

// NextStep returns what the operator should do next, or "" when done.
func (t *Tracker) NextStep() string {
	if t.IsSetupComplete() {
		return ""
	}
	return NextStepSetup
}

// Timestamp returns when step was last marked complete.
func (t *Tracker) Timestamp(step string) (time.Time, bool) {
	t.mu.Lock()
	s, ok := t.doc.Timestamps[step]
	t.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return parseStamp(s)
}

// LastUpdated returns the last_updated metadata.
func (t *Tracker) LastUpdated() (time.Time, bool) {
	t.mu.Lock()
	lu := t.doc.Metadata.LastUpdated
	t.mu.Unlock()
	if lu == nil {
		return time.Time{}, false
	}
	return parseStamp(*lu)
}

// parseStamp accepts RFC 3339 and the zone-less ISO form written by older
// installs.
func parseStamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Milestones returns every known step name, sorted.
func (t *Tracker) Milestones() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.doc.Setup))
	for k := range t.doc.Setup {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Summary returns a read-only snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.doc.Setup[StepSetupComplete]
	s := Summary{
		IsComplete: done,
		Steps:      make(map[string]bool, len(t.doc.Setup)),
	}
	for k, v := range t.doc.Setup {
		s.Steps[k] = v
	}
	if _, ok := s.Steps[StepSetupComplete]; !ok {
		s.Steps[StepSetupComplete] = false
	}
	if done {
		s.ProgressPercent = 100
	} else {
		s.NextStep = NextStepSetup
	}
	if lu := t.doc.Metadata.LastUpdated; lu != nil {
		s.LastUpdated = *lu
	}
	return s
}

// Document returns a copy of the in-memory document.
func (t *Tracker) Document() Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.clone()
}
