package sessionlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func TestOpen_NamesFileAfterStart(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()

	l, err := Open(filepath.Join(dir, "logs"), Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if got := filepath.Base(l.Path()); got != "20250314-092653.log" {
		t.Errorf("file name = %q, want %q", got, "20250314-092653.log")
	}
	if !l.Active() {
		t.Error("Active() = false after Open")
	}
	if l.ID() == "" {
		t.Error("ID() is empty")
	}

	info, err := os.Stat(l.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestOpen_SameSecondGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()

	first, err := Open(dir, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer first.Close()
	second, err := Open(dir, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()

	if first.Path() == second.Path() {
		t.Fatalf("both sessions share %s", first.Path())
	}
	if got := filepath.Base(second.Path()); got != "20250314-092653-1.log" {
		t.Errorf("second file name = %q", got)
	}
}

func TestLog_HeaderAndFooter(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()

	l, err := Open(dir, Options{Now: clock.Now, Title: "Test Session"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	clock.Advance(90 * time.Second)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, l.Path())
	for _, want := range []string{
		"Test Session",
		"Session ID: " + l.ID(),
		"Session Start: 2025-03-14 09:26:53",
		"Session End: 2025-03-14 09:28:23",
		"Duration: 1m30s",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q\n%s", want, content)
		}
	}
}

func TestLog_RecordFormats(t *testing.T) {
	dir := t.TempDir()
	clock := newClock()
	l, err := Open(dir, Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	l.Menu("Main Menu", "3")
	l.Input("Router password", "hunter2", true)
	l.Input("Router IP", "192.168.1.1", false)
	l.Command([]string{"pihole", "-g"}, "line one\nline two\n", "warn\n", true)
	l.Command([]string{"false"}, "", "", false)
	l.Status("success", "Gravity updated")
	l.State("mark_complete", "pihole_installed", true)
	l.Config("set", "router.password", "secret", true)
	l.Config("set", "pihole.web_url", "http://pi/admin", false)
	l.Separator("Health Check")
	l.Info("blocked %d domains", 42)
	l.Error("lookup failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, l.Path())
	wants := []string{
		"[2025-03-14 09:26:53.000] [MENU] Main Menu -> Choice: 3",
		"[INPUT] Router password = ***MASKED***",
		"[INPUT] Router IP = 192.168.1.1",
		"[CMD] SUCCESS: pihole -g",
		"[CMD:STDOUT]   line one",
		"[CMD:STDOUT]   line two",
		"[CMD:STDERR]   warn",
		"[CMD] FAILED: false",
		"[SUCCESS] Gravity updated",
		"[STATE:MARK_COMPLETE] pihole_installed = true",
		"[CONFIG:SET] router.password = ***MASKED***",
		"[CONFIG:SET] pihole.web_url = http://pi/admin",
		"[----] Health Check",
		"[INFO] blocked 42 domains",
		"[ERROR] lookup failed",
	}
	for _, want := range wants {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q", want)
		}
	}
	for _, secret := range []string{"hunter2", "= secret"} {
		if strings.Contains(content, secret) {
			t.Errorf("log leaks masked value %q", secret)
		}
	}
}

func TestLog_MultilineMessagesStayOnOneLine(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Now: newClock().Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l.Status("info", "first\nsecond")
	l.Close()

	if !strings.Contains(readLog(t, l.Path()), "[INFO] first second") {
		t.Error("multi-line message was not flattened")
	}
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }

func TestLog_ExceptionWalksChain(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Now: newClock().Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	root := errors.New("connection refused")
	l.Exception(fmt.Errorf("query gravity: %w", wrapped{root}), "loading stats")
	l.Exception(nil, "ignored")
	l.Close()

	content := readLog(t, l.Path())
	for _, want := range []string{
		"[EXCEPTION] loading stats",
		"query gravity: wrapped: connection refused",
		"caused by sessionlog.wrapped",
		"caused by *errors.errorString: connection refused",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q\n%s", want, content)
		}
	}
	if strings.Contains(content, "ignored") {
		t.Error("nil exception was logged")
	}
}

func TestLog_AfterCloseIsNoop(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Now: newClock().Now})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	before := readLog(t, l.Path())

	l.Menu("Main", "1")
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if l.Active() {
		t.Error("Active() = true after Close")
	}
	if after := readLog(t, l.Path()); after != before {
		t.Error("log changed after Close")
	}
}

func TestLog_NilIsSafe(t *testing.T) {
	var l *Log
	l.Menu("Main", "1")
	l.Input("p", "v", true)
	l.Command([]string{"ls"}, "", "", true)
	l.Status("info", "x")
	l.State("mark", "s", true)
	l.Config("set", "k", "v", false)
	l.Exception(errors.New("boom"), "ctx")
	l.Separator("")
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
	if l.Path() != "" || l.ID() != "" || l.Active() {
		t.Error("nil log reports state")
	}
}

func TestLog_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Info("worker %d line %d", n, j)
			}
		}(i)
	}
	wg.Wait()
	l.Close()

	if got := strings.Count(readLog(t, l.Path()), "[INFO] worker"); got != 200 {
		t.Errorf("logged %d lines, want 200", got)
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"20250101-000000.log",
		"20250102-000000.log",
		"20250102-000000-1.log",
		"20250103-120000.log",
		"notes.log",
		"pimgr.debug.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Prune(dir, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed %d files, want 2: %v", len(removed), removed)
	}

	for _, gone := range []string{"20250101-000000.log", "20250102-000000.log"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", gone)
		}
	}
	for _, kept := range []string{"20250102-000000-1.log", "20250103-120000.log", "notes.log", "pimgr.debug.log"} {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Errorf("%s should be kept: %v", kept, err)
		}
	}
}

func TestPrune_SameSecondSuffixesSortNumerically(t *testing.T) {
	dir := t.TempDir()
	names := []string{"20250101-000000.log"}
	for i := 1; i <= 11; i++ {
		names = append(names, fmt.Sprintf("20250101-000000-%d.log", i))
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := Prune(dir, 3); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	for _, kept := range []string{"20250101-000000-9.log", "20250101-000000-10.log", "20250101-000000-11.log"} {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Errorf("%s should be kept: %v", kept, err)
		}
	}
	for _, gone := range []string{"20250101-000000.log", "20250101-000000-2.log", "20250101-000000-8.log"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", gone)
		}
	}
}

func TestPrune_KeepZeroDoesNothing(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "20250101-000000.log")
	os.WriteFile(p, []byte("x"), 0o600)

	removed, err := Prune(dir, 0)
	if err != nil || removed != nil {
		t.Errorf("Prune(0) = %v, %v", removed, err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Error("file removed with keep=0")
	}
}

func TestOpen_PrunesWithKeep(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"20240101-000000.log", "20240102-000000.log"} {
		os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600)
	}

	l, err := Open(dir, Options{Now: newClock().Now, Keep: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(filepath.Join(dir, "20240101-000000.log")); !os.IsNotExist(err) {
		t.Error("oldest log should have been pruned")
	}
	if _, err := os.Stat(l.Path()); err != nil {
		t.Errorf("current log pruned: %v", err)
	}
}
