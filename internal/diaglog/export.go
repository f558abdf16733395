package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line of the export file (valid NDJSON). Beyond the
// environment fields it summarises the log so a support reader can see at a
// glance which components were active and what they reported without scanning
// the raw entries.
type DiagBundle struct {
	ExportedAt string         `json:"exported_at"`
	Version    string         `json:"tablewatch_version"`
	GoVersion  string         `json:"go_version"`
	OS         string         `json:"os"`
	Arch       string         `json:"arch"`
	LogFile    string         `json:"log_file"`
	EntryCount int            `json:"entry_count"`
	Malformed  int            `json:"malformed_lines,omitempty"`
	FirstEntry string         `json:"first_entry_ts,omitempty"`
	LastEntry  string         `json:"last_entry_ts,omitempty"`
	Components map[string]int `json:"components,omitempty"`
	Events     map[string]int `json:"events,omitempty"`
}

// Export reads logPath, summarises its entries into a DiagBundle header, and
// writes header plus the raw log lines to dest/tablewatch-diag-<ts>.ndjson.
// Returns the written file path and number of log lines included.
func Export(logPath, dest string) (path string, lines int, err error) {
	src, err := os.Open(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	defer func() { _ = src.Close() }()

	bundle := DiagBundle{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFile:    logPath,
		Components: make(map[string]int),
		Events:     make(map[string]int),
	}

	// Buffer all lines while tallying them. The log is size-capped, so
	// holding it in memory is fine.
	var rawLines [][]byte
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		rawLines = append(rawLines, line)

		var entry LogEntry
		if jerr := json.Unmarshal(line, &entry); jerr != nil || entry.Event == "" {
			bundle.Malformed++
			continue
		}
		bundle.Components[entry.Component]++
		bundle.Events[entry.Event]++
		if bundle.FirstEntry == "" {
			bundle.FirstEntry = entry.Timestamp
		}
		bundle.LastEntry = entry.Timestamp
	}
	if serr := scanner.Err(); serr != nil {
		return "", 0, fmt.Errorf("log file unreadable: %w", serr)
	}
	bundle.EntryCount = len(rawLines)

	tstamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "tablewatch-diag-"+tstamp+".ndjson")

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	header, merr := json.Marshal(bundle)
	if merr != nil {
		return "", 0, merr
	}
	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range rawLines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}

	return outPath, len(rawLines), nil
}
