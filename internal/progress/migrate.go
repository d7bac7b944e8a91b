package progress

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/fsutil"
)

// FinalWizardModule is the last module the setup wizard runs.
const FinalWizardModule = "health_check"

type wizardSnapshot struct {
	SetupStarted string `json:"setup_started"`
	Modules      map[string]struct {
		Status      string `json:"status"`
		CompletedAt string `json:"completed_at"`
	} `json:"modules"`
}

// MigrateWizardState creates the progress file from a finished wizard run.
// It does nothing when the progress file already exists, when there is no
// wizard state, or when the final module has not completed. It reports
// whether a progress file was written.
func MigrateWizardState(fs afero.Fs, progressPath, wizardStatePath string) (bool, error) {
	if fsutil.Exists(fs, progressPath) || !fsutil.Exists(fs, wizardStatePath) {
		return false, nil
	}

	data, err := fsutil.ReadFile(fs, wizardStatePath)
	if err != nil {
		return false, fmt.Errorf("failed to read wizard state: %w", err)
	}
	var ws wizardSnapshot
	if err := json.Unmarshal(data, &ws); err != nil {
		return false, fmt.Errorf("failed to parse wizard state: %w", err)
	}

	final, ok := ws.Modules[FinalWizardModule]
	if !ok || final.Status != "completed" {
		return false, nil
	}

	doc := Document{
		Setup:      map[string]bool{StepSetupComplete: true},
		Timestamps: map[string]string{},
		Metadata:   Metadata{CreatedAt: ws.SetupStarted},
	}
	if final.CompletedAt != "" {
		doc.Timestamps[StepSetupComplete] = final.CompletedAt
		at := final.CompletedAt
		doc.Metadata.LastUpdated = &at
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return false, err
	}
	if err := fsutil.WriteFileAtomic(fs, progressPath, buf.Bytes(), fsutil.PrivatePerm); err != nil {
		return false, fmt.Errorf("failed to write progress: %w", err)
	}
	return true, nil
}
