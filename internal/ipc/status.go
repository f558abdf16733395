// Package ipc exchanges state with the status CLI through small files under
// ~/.cache/tablewatch: status.json written atomically by the daemon, cmd.txt
// written by the CLI and consumed by the daemon.
package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// OperatingMode is the user-controlled run mode of the pipeline.
type OperatingMode string

const (
	ModeRunning OperatingMode = "running" // detection cycles active
	ModePaused  OperatingMode = "paused"  // cycles suspended, state retained
)

// CategoryHealth is one category's rolling accuracy summary in the snapshot.
type CategoryHealth struct {
	SuccessRate    float64 `json:"success_rate"`
	MeanConfidence float64 `json:"mean_confidence"`
	P95Millis      int64   `json:"p95_ms"`
	Samples        int     `json:"samples"`
}

// TableSummary is one tracked table's headline state.
type TableSummary struct {
	TableID  string  `json:"table_id"`
	Title    string  `json:"title"`
	Pot      float64 `json:"pot"`
	Street   string  `json:"street"`
	Hero     string  `json:"hero"`
	Board    string  `json:"board"`
	Fallback bool    `json:"fallback"`
}

// StatusSnapshot is the complete daemon state at a point in time.
type StatusSnapshot struct {
	Mode             OperatingMode             `json:"mode"`
	DegradationLevel string                    `json:"degradation_level"`
	Tables           []TableSummary            `json:"tables"`
	Categories       map[string]CategoryHealth `json:"categories"`
	QueuedEvents     int                       `json:"queued_events"`
	Clients          int                       `json:"clients"` // connected broadcast clients
	LastError        string                    `json:"last_error"`
	Timestamp        time.Time                 `json:"timestamp"`
}

func cacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "tablewatch")
}

// WriteStatus persists the snapshot to ~/.cache/tablewatch/status.json using
// an atomic write so readers never see a torn file.
func WriteStatus(status *StatusSnapshot) error {
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(dir, "status.json"), status)
}

// ReadStatus loads the snapshot from ~/.cache/tablewatch/status.json.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir(), "status.json"))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename.
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
