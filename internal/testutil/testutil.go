// Package testutil provides fixtures shared by pimgr's package tests: a
// scripted command runner and Pi-hole SQLite databases with the appliance
// schema.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/executor"
)

// GravitySchema is the subset of Pi-hole's gravity.db used by pimgr.
const GravitySchema = `
CREATE TABLE adlist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT UNIQUE NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	date_added INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as int)),
	date_modified INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as int)),
	comment TEXT
);
CREATE TABLE domainlist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL DEFAULT 0,
	domain TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	date_added INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as int)),
	date_modified INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as int)),
	comment TEXT,
	UNIQUE(domain, type)
);
CREATE TABLE gravity (
	domain TEXT NOT NULL,
	adlist_id INTEGER NOT NULL REFERENCES adlist (id)
);
`

// FTLSchema is the subset of Pi-hole's pihole-FTL.db used by pimgr.
const FTLSchema = `
CREATE TABLE queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	type INTEGER NOT NULL,
	status INTEGER NOT NULL,
	domain TEXT NOT NULL,
	client TEXT NOT NULL,
	forward TEXT
);
CREATE TABLE network (
	id INTEGER PRIMARY KEY NOT NULL,
	hwaddr TEXT UNIQUE NOT NULL,
	interface TEXT NOT NULL,
	firstSeen INTEGER NOT NULL,
	lastQuery INTEGER NOT NULL,
	numQueries INTEGER NOT NULL,
	macVendor TEXT
);
CREATE TABLE network_addresses (
	network_id INTEGER NOT NULL REFERENCES network (id),
	ip TEXT UNIQUE NOT NULL,
	lastSeen INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as int)),
	name TEXT,
	nameUpdated INTEGER
);
`

// NewDB creates a SQLite database file in a temp dir, applies schema and
// then every statement in seed. It returns the file path.
func NewDB(t *testing.T, name, schema string, seed ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", name, err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema for %s: %v", name, err)
	}
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed %s with %q: %v", name, stmt, err)
		}
	}
	return path
}

// NewGravityDB creates a gravity.db fixture.
func NewGravityDB(t *testing.T, seed ...string) string {
	t.Helper()
	return NewDB(t, "gravity.db", GravitySchema, seed...)
}

// NewFTLDB creates a pihole-FTL.db fixture.
func NewFTLDB(t *testing.T, seed ...string) string {
	t.Helper()
	return NewDB(t, "pihole-FTL.db", FTLSchema, seed...)
}

// FakeRunner is an executor.Runner that returns scripted results and
// records every command it receives.
type FakeRunner struct {
	mu        sync.Mutex
	responses []response
	calls     []executor.Command
	// Default is returned when no scripted response matches.
	Default executor.Result
}

type response struct {
	prefix []string
	result executor.Result
	lines  []string
}

var _ executor.Runner = (*FakeRunner)(nil)

// NewFakeRunner returns a runner whose unmatched commands succeed with
// empty output.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Default: executor.Result{Success: true}}
}

// On scripts the result for any command whose argv starts with prefix.
// Later registrations take precedence.
func (f *FakeRunner) On(result executor.Result, prefix ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{prefix: prefix, result: result})
	return f
}

// OnStream scripts the lines delivered by Stream for prefix.
func (f *FakeRunner) OnStream(lines []string, result executor.Result, prefix ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result.Stdout == "" {
		result.Stdout = strings.Join(lines, "\n")
	}
	f.responses = append(f.responses, response{prefix: prefix, result: result, lines: lines})
	return f
}

// Fail scripts a failed command with the given stderr.
func (f *FakeRunner) Fail(stderr string, prefix ...string) *FakeRunner {
	err := errors.NewCommandError(prefix, 1, errors.ErrCommandFailed).WithStderr(stderr)
	return f.On(executor.Result{ExitCode: 1, Stderr: stderr, Err: err}, prefix...)
}

// Run implements executor.Runner.
func (f *FakeRunner) Run(ctx context.Context, c executor.Command) executor.Result {
	res, _ := f.match(c)
	return res
}

// Stream implements executor.Runner.
func (f *FakeRunner) Stream(ctx context.Context, c executor.Command, onLine func(string)) executor.Result {
	res, lines := f.match(c)
	for _, l := range lines {
		onLine(l)
	}
	return res
}

func (f *FakeRunner) match(c executor.Command) (executor.Result, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	for i := len(f.responses) - 1; i >= 0; i-- {
		r := f.responses[i]
		if hasPrefix(c.Args, r.prefix) {
			return r.result, r.lines
		}
	}
	return f.Default, nil
}

// Calls returns every command received so far.
func (f *FakeRunner) Calls() []executor.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Command(nil), f.calls...)
}

// Commands returns the argv of every call joined with spaces.
func (f *FakeRunner) Commands() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

// Called reports whether a command starting with prefix was run.
func (f *FakeRunner) Called(prefix ...string) bool {
	for _, c := range f.Calls() {
		if hasPrefix(c.Args, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(args, prefix []string) bool {
	if len(prefix) > len(args) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}
