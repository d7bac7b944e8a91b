package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestCommandError(t *testing.T) {
	t.Run("failed command", func(t *testing.T) {
		err := NewCommandError([]string{"pihole", "-g"}, 2, ErrCommandFailed).WithStderr("  no network \n")

		if got := err.Error(); !strings.Contains(got, "cmd=pihole -g, exit=2") {
			t.Errorf("Error() = %q", got)
		}
		if !strings.Contains(err.Error(), "stderr: no network") {
			t.Errorf("Error() missing stderr: %q", err.Error())
		}
		if !Is(err, ErrCommandFailed) {
			t.Error("Is(err, ErrCommandFailed) = false")
		}
		if Is(err, ErrCommandTimeout) {
			t.Error("Is(err, ErrCommandTimeout) = true")
		}
		if IsRetryable(err) {
			t.Error("non-timeout failure should not be retryable")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		err := NewCommandError([]string{"sleep", "10"}, -1, ErrCommandTimeout)

		if !err.TimedOut {
			t.Error("TimedOut = false")
		}
		if strings.Contains(err.Error(), "exit=") {
			t.Errorf("timeout should not report exit code: %q", err.Error())
		}
		if !Is(err, ErrCommandTimeout) || !Is(err, ErrCommandFailed) {
			t.Error("timeout should match both sentinels")
		}
		if !IsRetryable(fmt.Errorf("wrapped: %w", err)) {
			t.Error("timeout should be retryable through wrapping")
		}
	})

	t.Run("argv is copied", func(t *testing.T) {
		argv := []string{"a", "b"}
		err := NewCommandError(argv, 1, nil)
		argv[0] = "changed"
		if err.Argv[0] != "a" {
			t.Error("Argv aliases caller slice")
		}
	})

	t.Run("as", func(t *testing.T) {
		var target *CommandError
		wrapped := Wrap(NewCommandError([]string{"x"}, 1, nil), "health")
		if !As(wrapped, &target) || target.ExitCode != 1 {
			t.Errorf("As() failed: %v", target)
		}
	})
}

func TestDatabaseError(t *testing.T) {
	err := NewDatabaseError("/etc/pihole/gravity.db", "query adlists", New("no such table: adlist")).
		WithQuery("SELECT id,\n  address FROM adlist")

	if got := err.Error(); got != "database error [db=/etc/pihole/gravity.db]: query adlists: no such table: adlist" {
		t.Errorf("Error() = %q", got)
	}
	if err.Query != "SELECT id, address FROM adlist" {
		t.Errorf("Query = %q", err.Query)
	}
	if IsRetryable(err) {
		t.Error("missing table should not be retryable")
	}

	locked := NewDatabaseError("ftl", "read", New("database is locked"))
	if !IsRetryable(locked) {
		t.Error("locked database should be retryable")
	}
	if !Is(locked, &DatabaseError{}) {
		t.Error("Is(&DatabaseError{}) = false")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("rule", "r-12").WithCause(ErrRuleNotFound)

	if err.Error() != "rule 'r-12' not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrRuleNotFound) {
		t.Error("Is(err, ErrRuleNotFound) = false")
	}
	if !Is(fmt.Errorf("x: %w", err), &NotFoundError{}) {
		t.Error("type match through wrap failed")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{"message only", NewValidationError("bad"), "validation error: bad"},
		{"field", NewValidationError("bad").WithField("domain"), "validation error [field=domain]: bad"},
		{"field and value", NewValidationError("bad").WithField("domain").WithValue("a..b"), "validation error [field=domain, value=a..b]: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !Is(tt.err, ErrInvalidInput) {
				t.Error("Is(err, ErrInvalidInput) = false")
			}
		})
	}

	withCause := NewValidationError("bad domain").WithCause(ErrInvalidDomain)
	if !Is(withCause, ErrInvalidDomain) {
		t.Error("cause not matched")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", New("boom"), false},
		{"not configured", Wrap(ErrNotConfigured, "stats"), true},
		{"router disabled", ErrRouterDisabled, true},
		{"validation", NewValidationError("x"), true},
		{"command", NewCommandError([]string{"x"}, 1, nil), true},
		{"timeout sentinel only", ErrCommandTimeout, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if !IsRetryable(Wrap(ErrCommandTimeout, "dig")) {
		t.Error("bare timeout sentinel should be retryable")
	}
	if IsRetryable(New("boom")) {
		t.Error("plain error is not retryable")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Error("wrapping nil should return nil")
	}
	err := Wrapf(ErrStepUnknown, "module %q", "dns")
	if err.Error() != `module "dns": unknown setup step` {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrStepUnknown) {
		t.Error("wrapped sentinel lost")
	}
}
