package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pihole-manager/pimgr/internal/executor"
)

func TestNewGravityDB(t *testing.T) {
	path := NewGravityDB(t, `INSERT INTO adlist (address, comment) VALUES ('https://a.example/list', 'a')`)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM adlist`).Scan(&n); err != nil {
		t.Fatalf("count adlist: %v", err)
	}
	if n != 1 {
		t.Errorf("adlist rows = %d, want 1", n)
	}
}

func TestFakeRunner(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRunner().
		On(executor.Result{Success: true, Stdout: "active"}, "systemctl", "is-active").
		Fail("nope", "systemctl", "is-active", "lighttpd")

	if got := f.Run(ctx, executor.Command{Args: []string{"systemctl", "is-active", "pihole-FTL"}}); got.Stdout != "active" {
		t.Errorf("pihole-FTL Stdout = %q, want active", got.Stdout)
	}
	got := f.Run(ctx, executor.Command{Args: []string{"systemctl", "is-active", "lighttpd"}})
	if got.Success || got.Stderr != "nope" || got.Err == nil {
		t.Errorf("lighttpd result = %+v, want scripted failure", got)
	}
	if got := f.Run(ctx, executor.Command{Args: []string{"uptime"}}); !got.Success {
		t.Error("unmatched command should use Default")
	}

	if !f.Called("uptime") {
		t.Error("Called(uptime) = false")
	}
	if f.Called("reboot") {
		t.Error("Called(reboot) = true")
	}
	if n := len(f.Commands()); n != 3 {
		t.Errorf("len(Commands()) = %d, want 3", n)
	}
}

func TestFakeRunnerStream(t *testing.T) {
	f := NewFakeRunner().OnStream([]string{"a", "b"}, executor.Result{Success: true}, "pihole", "-g")

	var lines []string
	res := f.Stream(context.Background(), executor.Command{Args: []string{"pihole", "-g"}}, func(l string) {
		lines = append(lines, l)
	})
	if len(lines) != 2 || res.Stdout != "a\nb" {
		t.Errorf("lines = %v, Stdout = %q", lines, res.Stdout)
	}
}
