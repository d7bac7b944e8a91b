// Package sessionlog keeps the human-readable audit trail of one pimgr run:
// every menu choice, prompt answer, command, state change and error is
// appended as a timestamped "[LEVEL] message" line to a file named after the
// moment the run started.
//
// A Log is created with Open and must be closed with Close. A nil *Log is
// valid and discards everything, so components can take one optionally.
package sessionlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// fileTimeLayout names the log file after the session start.
	fileTimeLayout = "20060102-150405"
	// lineTimeLayout prefixes every line.
	lineTimeLayout = "2006-01-02 15:04:05.000"
	// headerTimeLayout is used in the header and footer.
	headerTimeLayout = "2006-01-02 15:04:05"

	masked = "***MASKED***"
	rule   = "================================================================================"
	thin   = "--------------------------------------------------------------------------------"
)

// Options tweak how a session log is opened.
type Options struct {
	// Title is written in the header. Defaults to "pimgr - Session Log".
	Title string
	// Now overrides the clock (tests).
	Now func() time.Time
	// Keep prunes older session logs in the directory down to this many
	// files after opening. Zero keeps everything.
	Keep int
}

// Log is an append-only session log. Its methods are safe for concurrent
// use and never panic or return errors: a failing write is reported once on
// stderr and the log goes quiet.
type Log struct {
	mu     sync.Mutex
	w      io.WriteCloser
	path   string
	id     string
	start  time.Time
	now    func() time.Time
	active bool
	warned bool
}

// Open creates dir if needed and starts a new session log file in it.
func Open(dir string, opts Options) (*Log, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	title := opts.Title
	if title == "" {
		title = "pimgr - Session Log"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	start := now()
	f, path, err := createUnique(dir, start)
	if err != nil {
		return nil, err
	}

	l := &Log{
		w:      f,
		path:   path,
		id:     ulid.Make().String(),
		start:  start,
		now:    now,
		active: true,
	}
	l.writeRaw(fmt.Sprintf("\n%s\n%s\n%s\nSession ID: %s\nSession Start: %s\nLog File: %s\n%s\n\n",
		rule, title, rule, l.id, start.Format(headerTimeLayout), filepath.Base(path), rule))

	if opts.Keep > 0 {
		// Retention problems must not stop the session from starting.
		_, _ = Prune(dir, opts.Keep)
	}
	return l, nil
}

// createUnique opens <dir>/<timestamp>.log exclusively, adding a numeric
// suffix when two runs start within the same second.
func createUnique(dir string, start time.Time) (*os.File, string, error) {
	base := start.Format(fileTimeLayout)
	for i := 0; i < 100; i++ {
		name := base + ".log"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.log", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to open session log: %w", err)
		}
	}
	return nil, "", fmt.Errorf("failed to open session log: too many logs for %s", base)
}

// Path returns the log file path, or "" for a nil log.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// ID returns the session identifier written in the header.
func (l *Log) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// Active reports whether the log is open.
func (l *Log) Active() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Close writes the footer and closes the file. Closing twice is a no-op.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return nil
	}

	end := l.now()
	footer := fmt.Sprintf("\n%s\nSession End: %s\nDuration: %s\n%s\n",
		rule, end.Format(headerTimeLayout), end.Sub(l.start).Round(time.Millisecond), rule)
	_, werr := io.WriteString(l.w, footer)

	l.active = false
	cerr := l.w.Close()
	l.w = nil
	if werr != nil {
		return fmt.Errorf("failed to write footer: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close session log: %w", cerr)
	}
	return nil
}

// Menu records a menu selection.
func (l *Log) Menu(menu, choice string) {
	l.line("MENU", fmt.Sprintf("%s -> Choice: %s", menu, choice))
}

// Input records an answer to a prompt. Masked values are never written.
func (l *Log) Input(prompt, value string, mask bool) {
	if mask {
		value = masked
	}
	l.line("INPUT", fmt.Sprintf("%s = %s", prompt, value))
}

// Command records an executed command and its output, one line per output
// line.
func (l *Log) Command(argv []string, stdout, stderr string, ok bool) {
	status := "SUCCESS"
	if !ok {
		status = "FAILED"
	}
	l.line("CMD", fmt.Sprintf("%s: %s", status, strings.Join(argv, " ")))
	for _, s := range splitLines(stdout) {
		l.line("CMD:STDOUT", "  "+s)
	}
	for _, s := range splitLines(stderr) {
		l.line("CMD:STDERR", "  "+s)
	}
}

// Status records a status message; level is upper-cased (info, success,
// warning, error).
func (l *Log) Status(level, msg string) {
	l.line(strings.ToUpper(level), msg)
}

// Info is shorthand for Status("info", ...).
func (l *Log) Info(format string, args ...any) {
	l.line("INFO", fmt.Sprintf(format, args...))
}

// Error is shorthand for Status("error", ...).
func (l *Log) Error(format string, args ...any) {
	l.line("ERROR", fmt.Sprintf(format, args...))
}

// State records a milestone transition.
func (l *Log) State(action, step string, value any) {
	l.line("STATE:"+strings.ToUpper(action), fmt.Sprintf("%s = %v", step, value))
}

// Config records a settings change.
func (l *Log) Config(action, key string, value any, mask bool) {
	v := fmt.Sprint(value)
	if mask {
		v = masked
	}
	l.line("CONFIG:"+strings.ToUpper(action), fmt.Sprintf("%s = %s", key, v))
}

// Exception records an error and its wrap chain.
func (l *Log) Exception(err error, context string) {
	if err == nil {
		return
	}
	l.line("EXCEPTION", context)
	l.line("EXCEPTION", fmt.Sprintf("%T: %v", err, err))
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		l.line("EXCEPTION", fmt.Sprintf("  caused by %T: %v", cause, cause))
	}
}

// Separator writes a visual divider, optionally titled.
func (l *Log) Separator(title string) {
	if title == "" {
		l.line("----", thin)
		return
	}
	l.line("----", title)
}

func (l *Log) line(level, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	ts := l.now().Format(lineTimeLayout)
	l.writeLocked(fmt.Sprintf("[%s] [%s] %s\n", ts, level, oneLine(msg)))
}

func (l *Log) writeRaw(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(s)
}

func (l *Log) writeLocked(s string) {
	if l.w == nil {
		return
	}
	if _, err := io.WriteString(l.w, s); err != nil && !l.warned {
		l.warned = true
		fmt.Fprintf(os.Stderr, "Warning: failed to write session log %s: %v\n", l.path, err)
	}
}

// oneLine keeps every record on a single physical line.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// Prune removes the oldest session logs in dir so at most keep remain.
// Session log names sort chronologically. It returns the removed paths.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var logs []string
	for _, e := range entries {
		if e.IsDir() || !isSessionLogName(e.Name()) {
			continue
		}
		logs = append(logs, e.Name())
	}
	if len(logs) <= keep {
		return nil, nil
	}
	sort.Slice(logs, func(i, j int) bool {
		si, ni := sessionLogKey(logs[i])
		sj, nj := sessionLogKey(logs[j])
		if si != sj {
			return si < sj
		}
		return ni < nj
	})

	var removed []string
	for _, name := range logs[:len(logs)-keep] {
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err == nil {
			removed = append(removed, p)
		}
	}
	return removed, nil
}

// sessionLogKey splits a session log name into its timestamp and the
// same-second suffix, 0 when there is none.
func sessionLogKey(name string) (string, int) {
	base := strings.TrimSuffix(name, ".log")
	stamp, rest := base[:len(fileTimeLayout)], base[len(fileTimeLayout):]
	n, err := strconv.Atoi(strings.TrimPrefix(rest, "-"))
	if err != nil {
		return stamp, 0
	}
	return stamp, n
}

// isSessionLogName matches YYYYMMDD-HHMMSS.log and YYYYMMDD-HHMMSS-N.log.
func isSessionLogName(name string) bool {
	if !strings.HasSuffix(name, ".log") || len(name) < len(fileTimeLayout)+4 {
		return false
	}
	_, err := time.Parse(fileTimeLayout, name[:len(fileTimeLayout)])
	return err == nil
}
