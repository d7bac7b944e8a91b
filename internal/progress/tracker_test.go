package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func newTracker(t *testing.T) (*Tracker, *clock, string) {
	t.Helper()
	c := newClock()
	path := filepath.Join(t.TempDir(), "state.json")
	return Open(path, WithClock(c.Now)), c, path
}

func readDoc(t *testing.T, path string) Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON on disk: %v", err)
	}
	return doc
}

func TestTracker_DefaultOnMissing(t *testing.T) {
	tr, _, path := newTracker(t)

	if tr.IsSetupComplete() {
		t.Error("fresh tracker reports setup complete")
	}
	if tr.ProgressPercent() != 0 {
		t.Errorf("ProgressPercent() = %d, want 0", tr.ProgressPercent())
	}
	doc := tr.Document()
	if doc.Metadata.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("CreatedAt = %q", doc.Metadata.CreatedAt)
	}
	if doc.Metadata.LastUpdated != nil {
		t.Errorf("LastUpdated = %v, want nil", *doc.Metadata.LastUpdated)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Open must not create the file")
	}
}

func TestTracker_DefaultOnCorrupt(t *testing.T) {
	for name, content := range map[string]string{
		"empty":        "",
		"null":         "null",
		"empty object": "{}",
		"truncated":    `{"setup": {"setup_complete": tr`,
		"wrong types":  `{"setup": {"setup_complete": "yes"}}`,
		"array":        `[1,2]`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			tr := Open(path, WithClock(newClock().Now))
			if tr.IsSetupComplete() {
				t.Error("corrupt file should read as fresh")
			}
			if got := tr.Milestones(); len(got) != 1 || got[0] != StepSetupComplete {
				t.Errorf("Milestones() = %v", got)
			}
		})
	}
}

func TestTracker_MarkCompleteIdempotent(t *testing.T) {
	tr, c, path := newTracker(t)

	if !tr.MarkComplete("pihole_installed") {
		t.Fatal("MarkComplete() = false")
	}
	first, _ := tr.Timestamp("pihole_installed")

	c.Advance(time.Minute)
	if !tr.MarkComplete("pihole_installed") {
		t.Fatal("second MarkComplete() = false")
	}
	second, _ := tr.Timestamp("pihole_installed")

	if !tr.IsComplete("pihole_installed") {
		t.Error("step not complete")
	}
	if !second.After(first) {
		t.Errorf("timestamp not refreshed: %v then %v", first, second)
	}

	doc := readDoc(t, path)
	if !doc.Setup["pihole_installed"] {
		t.Error("completion not persisted")
	}
	if doc.Timestamps["pihole_installed"] != "2025-06-01T12:01:00Z" {
		t.Errorf("timestamp on disk = %q", doc.Timestamps["pihole_installed"])
	}
	if doc.Metadata.LastUpdated == nil || *doc.Metadata.LastUpdated != "2025-06-01T12:01:00Z" {
		t.Errorf("last_updated = %v", doc.Metadata.LastUpdated)
	}
}

func TestTracker_ResetStepClearsTimestamp(t *testing.T) {
	tr, c, path := newTracker(t)
	tr.MarkComplete("blocklists")
	c.Advance(time.Hour)

	if !tr.ResetStep("blocklists") {
		t.Fatal("ResetStep() = false")
	}
	if tr.IsComplete("blocklists") {
		t.Error("step still complete")
	}
	if _, ok := tr.Timestamp("blocklists"); ok {
		t.Error("timestamp should be removed")
	}
	doc := readDoc(t, path)
	if _, ok := doc.Timestamps["blocklists"]; ok {
		t.Error("timestamp still on disk")
	}
	if *doc.Metadata.LastUpdated != "2025-06-01T13:00:00Z" {
		t.Errorf("last_updated = %q", *doc.Metadata.LastUpdated)
	}
}

func TestTracker_MarkIncompleteKeepsTimestamp(t *testing.T) {
	tr, c, path := newTracker(t)
	tr.MarkComplete("ssh")
	before := *tr.Document().Metadata.LastUpdated
	c.Advance(time.Hour)

	if !tr.MarkIncomplete("ssh") {
		t.Fatal("MarkIncomplete() = false")
	}
	if tr.IsComplete("ssh") {
		t.Error("step still complete")
	}
	if _, ok := tr.Timestamp("ssh"); !ok {
		t.Error("MarkIncomplete should leave the timestamp")
	}
	doc := readDoc(t, path)
	if doc.Setup["ssh"] {
		t.Error("incomplete not persisted")
	}
	if *doc.Metadata.LastUpdated != before {
		t.Errorf("last_updated changed to %q", *doc.Metadata.LastUpdated)
	}
}

func TestTracker_ResetAll(t *testing.T) {
	tr, c, _ := newTracker(t)
	tr.MarkComplete(StepSetupComplete)
	tr.MarkComplete("extra")
	c.Advance(24 * time.Hour)

	if !tr.ResetAll() {
		t.Fatal("ResetAll() = false")
	}
	doc := tr.Document()
	if len(doc.Setup) != 1 || doc.Setup[StepSetupComplete] {
		t.Errorf("Setup = %v", doc.Setup)
	}
	if len(doc.Timestamps) != 0 {
		t.Errorf("Timestamps = %v", doc.Timestamps)
	}
	if doc.Metadata.CreatedAt != "2025-06-02T12:00:00Z" {
		t.Errorf("CreatedAt = %q, want fresh", doc.Metadata.CreatedAt)
	}
}

func TestTracker_SummaryAndPercent(t *testing.T) {
	tr, _, _ := newTracker(t)

	s := tr.Summary()
	if s.ProgressPercent != 0 || s.IsComplete || s.NextStep != NextStepSetup || s.LastUpdated != "" {
		t.Errorf("fresh Summary() = %+v", s)
	}

	tr.MarkComplete(StepSetupComplete)
	s = tr.Summary()
	if s.ProgressPercent != 100 || !s.IsComplete || s.NextStep != "" {
		t.Errorf("complete Summary() = %+v", s)
	}
	if !s.Steps[StepSetupComplete] {
		t.Error("Steps missing setup_complete")
	}
	if tr.NextStep() != "" {
		t.Errorf("NextStep() = %q", tr.NextStep())
	}

	s.Steps["mutated"] = true
	if tr.IsComplete("mutated") {
		t.Error("Summary shares its map with the tracker")
	}
}

func TestTracker_ReloadFromDisk(t *testing.T) {
	tr, _, path := newTracker(t)
	tr.MarkComplete("a")
	tr.MarkComplete("b")

	again := Open(path)
	if got := again.Milestones(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != StepSetupComplete {
		t.Errorf("Milestones() = %v", got)
	}
	ts, ok := again.Timestamp("a")
	if !ok || !ts.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Timestamp(a) = %v, %v", ts, ok)
	}
}

func TestTracker_LegacyTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "setup": {"setup_complete": true},
  "timestamps": {"setup_complete": "2024-11-02T08:15:30.123456"},
  "metadata": {"created_at": "2024-11-01T10:00:00", "last_updated": "2024-11-02T08:15:30.123456"}
}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}
	tr := Open(path)
	if !tr.IsSetupComplete() {
		t.Fatal("legacy document not read")
	}
	ts, ok := tr.Timestamp(StepSetupComplete)
	if !ok || ts.Year() != 2024 || ts.Minute() != 15 {
		t.Errorf("Timestamp() = %v, %v", ts, ok)
	}
	if _, ok := tr.LastUpdated(); !ok {
		t.Error("LastUpdated() not parsed")
	}
}

func TestTracker_Permissions(t *testing.T) {
	tr, _, path := newTracker(t)
	tr.MarkComplete("x")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Errorf("mode = %o, want no group/other bits", info.Mode().Perm())
	}
}

func TestTracker_SaveFailureReportsFalse(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	tr := Open("/opt/pihole-manager/state.json", WithFs(fs), WithClock(newClock().Now))

	if tr.MarkComplete("x") {
		t.Error("MarkComplete() = true on read-only filesystem")
	}
	if !tr.IsComplete("x") {
		t.Error("in-memory state should still reflect the change")
	}
}

func TestTracker_FreshInstall(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "opt", "pihole-manager", "state.json")
	c := newClock()
	tr := Open(path, WithClock(c.Now))

	if tr.ProgressPercent() != 0 {
		t.Fatal("fresh install should be at 0%")
	}
	c.Advance(10 * time.Minute)
	if !tr.MarkComplete(StepSetupComplete) {
		t.Fatal("MarkComplete() = false")
	}
	if Open(path).ProgressPercent() != 100 {
		t.Error("completion not persisted")
	}
}
