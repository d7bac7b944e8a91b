// Package internal contains integration tests that check the settings store,
// progress tracker and session log work together against a real directory.
package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/progress"
	"github.com/pihole-manager/pimgr/internal/secret"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
	"github.com/pihole-manager/pimgr/internal/settings"
)

// TestStoresRecordToSessionLog drives one session the way a command does
// and checks what reached disk.
func TestStoresRecordToSessionLog(t *testing.T) {
	root := t.TempDir()
	logs := filepath.Join(root, "logs")

	audit, err := sessionlog.Open(logs, sessionlog.Options{Keep: 5})
	require.NoError(t, err)

	cipher := secret.NewCipher(secret.StaticID("integration-host"))
	store := settings.Open(filepath.Join(root, "config.yaml"),
		settings.WithCipher(cipher),
		settings.WithSessionLog(audit))
	store.Set(settings.SectionPihole, "web_url", "http://192.168.1.2/admin")
	require.NoError(t, store.SetRouterPassword("s3cret-pass"))
	require.True(t, store.Save())

	tracker := progress.Open(filepath.Join(root, "state.json"), progress.WithSessionLog(audit))
	require.True(t, tracker.MarkComplete(progress.StepSetupComplete))

	logPath := audit.Path()
	require.NoError(t, audit.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "CONFIG:SET")
	assert.Contains(t, text, "pihole.web_url = http://192.168.1.2/admin")
	assert.Contains(t, text, "router.password = ***MASKED***")
	assert.Contains(t, text, "STATE:MARK_COMPLETE")
	assert.Contains(t, text, "Session End:")
	assert.NotContains(t, text, "s3cret-pass")

	// A fresh process sees the same state.
	reopened := settings.Open(filepath.Join(root, "config.yaml"), settings.WithCipher(cipher))
	assert.Equal(t, "http://192.168.1.2/admin", reopened.GetString(settings.SectionPihole, "web_url", ""))
	stored := reopened.GetString(settings.SectionRouter, "password", "")
	assert.True(t, secret.IsEncrypted(stored))
	assert.Equal(t, "s3cret-pass", reopened.DecryptPassword(stored))

	again := progress.Open(filepath.Join(root, "state.json"))
	assert.True(t, again.IsSetupComplete())
	assert.Equal(t, 100, again.ProgressPercent())
}

// TestWizardStateMigratesIntoProgress covers an install that finished setup
// before the progress file existed.
func TestWizardStateMigratesIntoProgress(t *testing.T) {
	root := t.TempDir()
	wizardPath := filepath.Join(root, "setup_state.json")
	progressPath := filepath.Join(root, "state.json")

	state := `{
  "setup_started": "2025-01-01T09:00:00Z",
  "modules": {
    "security": {"status": "completed", "completed_at": "2025-01-01T09:05:00Z"},
    "health_check": {"status": "completed", "completed_at": "2025-01-01T09:29:00Z"}
  }
}`
	require.NoError(t, os.WriteFile(wizardPath, []byte(state), 0o600))

	fs := fsutil.OsFs()
	migrated, err := progress.MigrateWizardState(fs, progressPath, wizardPath)
	require.NoError(t, err)
	assert.True(t, migrated)

	tracker := progress.Open(progressPath, progress.WithFs(fs))
	assert.True(t, tracker.IsSetupComplete())
	ts, ok := tracker.Timestamp(progress.StepSetupComplete)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01T09:29:00Z", ts.UTC().Format("2006-01-02T15:04:05Z"))

	// Second run leaves the existing progress file alone.
	migrated, err = progress.MigrateWizardState(fs, progressPath, wizardPath)
	require.NoError(t, err)
	assert.False(t, migrated)
}

// TestSessionLogsArePruned opens more sessions than are kept.
func TestSessionLogsArePruned(t *testing.T) {
	dir := t.TempDir()
	for range 4 {
		l, err := sessionlog.Open(dir, sessionlog.Options{Keep: 2})
		require.NoError(t, err)
		l.Info("hello")
		require.NoError(t, l.Close())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var logs []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, e.Name())
		}
	}
	assert.LessOrEqual(t, len(logs), 2)
}
