package router

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/secret"
	"github.com/pihole-manager/pimgr/internal/settings"
	"github.com/pihole-manager/pimgr/internal/testutil"
)

func newStore(t *testing.T, enabled, automation bool) *settings.Store {
	t.Helper()
	s := settings.Open("/etc/pimgr/config.yaml",
		settings.WithFs(afero.NewMemMapFs()),
		settings.WithCipher(secret.NewCipher(secret.StaticID("test-machine"))))
	s.Set(settings.SectionRouter, "enabled", enabled)
	s.Set(settings.SectionRouter, "host", "192.168.0.1")
	s.Set(settings.SectionRouter, "username", "admin")
	s.Set(settings.SectionRouter, "automation_mode", automation)
	return s
}

func noPrompt(t *testing.T) Prompter {
	return PrompterFunc(func(string) (string, error) {
		t.Error("prompter must not be called")
		return "", nil
	})
}

func TestCredentials_Disabled(t *testing.T) {
	_, err := Credentials(newStore(t, false, false), noPrompt(t))
	assert.ErrorIs(t, err, errors.ErrRouterDisabled)
}

func TestCredentials_DecryptsStoredPassword(t *testing.T) {
	s := newStore(t, true, true)
	require.NoError(t, s.SetRouterPassword("hunter2"))
	raw, _ := s.Value(settings.SectionRouter, "password")
	assert.NotEqual(t, "hunter2", raw.String(), "stored value must be ciphertext")

	login, err := Credentials(s, noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, Login{Host: "192.168.0.1", Username: "admin", Password: "hunter2"}, login)
	assert.Equal(t, "admin@192.168.0.1", login.String())
}

func TestCredentials_LegacyPlaintext(t *testing.T) {
	s := newStore(t, true, false)
	s.Set(settings.SectionRouter, "password", "plain-old")
	login, err := Credentials(s, noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "plain-old", login.Password)
}

func TestCredentials_PromptsInSecureMode(t *testing.T) {
	var asked string
	p := PrompterFunc(func(prompt string) (string, error) {
		asked = prompt
		return "typed", nil
	})
	login, err := Credentials(newStore(t, true, false), p)
	require.NoError(t, err)
	assert.Equal(t, PasswordPrompt, asked)
	assert.Equal(t, "typed", login.Password)
	assert.True(t, login.Prompted)
}

func TestCredentials_Errors(t *testing.T) {
	t.Run("automation without password", func(t *testing.T) {
		_, err := Credentials(newStore(t, true, true), noPrompt(t))
		var verr *errors.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "router.password", verr.Field)
	})
	t.Run("empty answer", func(t *testing.T) {
		_, err := Credentials(newStore(t, true, false), PrompterFunc(func(string) (string, error) { return "", nil }))
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
	t.Run("prompt canceled", func(t *testing.T) {
		_, err := Credentials(newStore(t, true, false), PrompterFunc(func(string) (string, error) { return "", errors.ErrCanceled }))
		assert.ErrorIs(t, err, errors.ErrCanceled)
	})
	t.Run("no prompter", func(t *testing.T) {
		_, err := Credentials(newStore(t, true, false), nil)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
	t.Run("missing host", func(t *testing.T) {
		s := newStore(t, true, false)
		s.Set(settings.SectionRouter, "host", "")
		_, err := Credentials(s, noPrompt(t))
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestValidHost(t *testing.T) {
	for host, want := range map[string]bool{
		"192.168.0.1":    true,
		"fe80::1":        true,
		"router.lan":     true,
		"tplinkwifi.net": true,
		"":               false,
		"-f":             false,
		"bad_host.lan":   false,
		"trailing-.lan":  false,
		"a..b":           false,
		"router; reboot": false,
	} {
		assert.Equal(t, want, ValidHost(host), host)
	}
}

func TestPing(t *testing.T) {
	runner := testutil.NewFakeRunner()
	require.NoError(t, Ping(context.Background(), runner, "192.168.0.1"))
	assert.Equal(t, []string{"ping -c 2 -W 2 192.168.0.1"}, runner.Commands())

	runner.Fail("100% packet loss", "ping")
	err := Ping(context.Background(), runner, "192.168.0.1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCommandFailed)
	assert.Contains(t, err.Error(), "router 192.168.0.1 unreachable")

	err = Ping(context.Background(), runner, "-f")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
