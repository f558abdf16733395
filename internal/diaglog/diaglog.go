// Package diaglog provides structured NDJSON diagnostic logging for
// Tablewatch. Activated by TABLEWATCH_DEBUG=true. When the env var is absent,
// all Log calls are no-ops and no file is created.
package diaglog

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"
)

// Component labels.

const (
	ComponentPipeline   = "pipeline"
	ComponentCapture    = "capture-adapter"
	ComponentClassifier = "window-classifier"
	ComponentEnsemble   = "ensemble"
	ComponentDispatcher = "state-dispatcher"
	ComponentFallback   = "fallback-manager"
	ComponentBroadcast  = "broadcast-hub"
	ComponentDiagExport = "diag-export"
	ComponentCore       = "tablewatch-core"
)

// Event names.

const (
	EventCycleStart      = "cycle_start"
	EventCycleComplete   = "cycle_complete"
	EventCaptureFailed   = "capture_failed"
	EventCategoryFailed  = "category_failed"
	EventStrategyFault   = "strategy_fault"
	EventCacheHit        = "cache_hit"
	EventCacheStale      = "cache_served_stale"
	EventFrameUnchanged  = "frame_unchanged"
	EventLevelChanged    = "level_changed"
	EventConfigReloaded  = "config_reloaded"
	EventClientConnect   = "ws_client_connect"
	EventClientDropped   = "ws_client_dropped"
	EventCommandReceived = "command_received"
)

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp     string      `json:"ts"` // RFC3339Nano
	Component     string      `json:"component"`
	Event         string      `json:"event"`
	TableID       string      `json:"table_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
}

// defaultLogCapMB bounds the debug log when TABLEWATCH_LOG_MAX_MB is unset.
const defaultLogCapMB = 10

// logCapBytes returns the log size cap. TABLEWATCH_LOG_MAX_MB overrides the
// default when it parses as a positive integer.
func logCapBytes() int64 {
	if v := os.Getenv("TABLEWATCH_LOG_MAX_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil && mb > 0 {
			return int64(mb) << 20
		}
	}
	return defaultLogCapMB << 20
}

// tailWriter appends to a single file and, when the cap would be exceeded,
// compacts the file down to its newest half so recent entries survive.
// Compaction keeps whole lines only. Callers serialise access; the Logger's
// mutex covers it.
type tailWriter struct {
	f    *os.File
	path string
	cap  int64
	size int64
}

func openTailWriter(path string, capBytes int64) (*tailWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &tailWriter{f: f, path: path, cap: capBytes, size: info.Size()}, nil
}

func (w *tailWriter) Write(p []byte) (int, error) {
	if w.size+int64(len(p)) > w.cap {
		if err := w.compact(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// compact rewrites the file keeping roughly the newest cap/2 bytes, advanced
// past the next newline so the retained content starts on an entry boundary.
func (w *tailWriter) compact() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	keepFrom := int64(len(data)) - w.cap/2
	if keepFrom < 0 {
		keepFrom = 0
	}
	if i := bytes.IndexByte(data[keepFrom:], '\n'); i >= 0 {
		keepFrom += int64(i) + 1
	} else {
		keepFrom = int64(len(data))
	}
	tail := data[keepFrom:]
	if err := w.f.Truncate(0); err != nil {
		return err
	}
	// The file is opened O_APPEND, so this lands at the new end (offset 0).
	n, err := w.f.Write(tail)
	w.size = int64(n)
	return err
}

func (w *tailWriter) close() error {
	if w.f == nil {
		return nil
	}
	_ = w.f.Sync()
	return w.f.Close()
}

// Logger writes LogEntry values to a size-capped NDJSON file. When debug mode
// is disabled every Log call is a no-op.
type Logger struct {
	tw      *tailWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	tw, err := openTailWriter(path, logCapBytes())
	if err != nil {
		return nil, err
	}
	return &Logger{tw: tw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes it to the
// capped file.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.tw.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.tw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tw.close()
}

// IsDebugEnabled reports whether TABLEWATCH_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("TABLEWATCH_DEBUG") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
