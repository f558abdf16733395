// Package fallback tracks detection trustworthiness as a five-level ladder
// and gates which detector categories run each cycle. It is the single
// authority on the current degradation level.
package fallback

import (
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/detect"
)

// Level is the degradation tier. Transitions move exactly one step at a time.
type Level int

const (
	LevelOffline Level = iota
	LevelFallback
	LevelMinimal
	LevelPartial
	LevelFull
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelPartial:
		return "partial"
	case LevelMinimal:
		return "minimal"
	case LevelFallback:
		return "fallback"
	default:
		return "offline"
	}
}

// EnabledCategories returns the detector categories active at this level.
// FALLBACK and OFFLINE run the minimal set only so a success can still be
// observed for recovery; their results are served flagged, not trusted.
func (l Level) EnabledCategories() []detect.Category {
	switch l {
	case LevelFull:
		return detect.AllCategories()
	case LevelPartial:
		// Drop the fine-grained low-priority categories.
		return []detect.Category{
			detect.CategoryPot, detect.CategoryCards, detect.CategoryPlayers,
			detect.CategoryBlinds, detect.CategoryDealer,
		}
	default:
		return []detect.Category{detect.CategoryPot, detect.CategoryCards}
	}
}

// MinimalCategories is the category set whose success counts as a fully
// successful cycle for recovery purposes.
func MinimalCategories() []detect.Category {
	return []detect.Category{detect.CategoryPot, detect.CategoryCards}
}

// Manager is the degradation state machine. Single-writer: only the driver
// loop records outcomes; Level is read concurrently by status queries.
type Manager struct {
	mu sync.Mutex

	level               Level
	consecutiveFailures int
	failureThreshold    int
	recoveryWindow      time.Duration

	lastSurfaceSeen time.Time
	now             func() time.Time
}

// New creates a manager at LevelFull.
func New(failureThreshold int, recoveryWindow time.Duration) *Manager {
	m := &Manager{
		level:            LevelFull,
		failureThreshold: failureThreshold,
		recoveryWindow:   recoveryWindow,
		now:              time.Now,
	}
	m.lastSurfaceSeen = m.now()
	return m
}

// NewWithClock injects a clock for deterministic window tests.
func NewWithClock(failureThreshold int, recoveryWindow time.Duration, now func() time.Time) *Manager {
	m := New(failureThreshold, recoveryWindow)
	m.now = now
	m.lastSurfaceSeen = now()
	return m
}

// Level returns the current degradation level.
func (m *Manager) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// RecordSuccess notes one fully successful cycle and rises exactly one level
// if not already at LevelFull. Returns the new level and whether it changed.
func (m *Manager) RecordSuccess() (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveFailures = 0
	if m.level >= LevelFull {
		return m.level, false
	}
	m.level++
	return m.level, true
}

// RecordFailure notes one failed cycle (capture failure or all categories
// failed). After the configured number of consecutive failures, the level
// drops exactly one step. The ladder does not descend below LevelFallback on
// failures alone; OFFLINE needs persistent surface loss (RecordSurfaceLost),
// so cache staleness cannot oscillate a session offline.
func (m *Manager) RecordFailure() (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveFailures++
	if m.consecutiveFailures < m.failureThreshold {
		return m.level, false
	}
	m.consecutiveFailures = 0
	if m.level <= LevelFallback {
		return m.level, false
	}
	m.level--
	return m.level, true
}

// RecordSurfaceSeen notes that the tracked surface still exists.
func (m *Manager) RecordSurfaceSeen() {
	m.mu.Lock()
	m.lastSurfaceSeen = m.now()
	m.mu.Unlock()
}

// RecordSurfaceLost notes that the tracked surface is gone this cycle. When
// already at LevelFallback and the loss has persisted for the recovery
// window, the session goes OFFLINE (one step, as always).
func (m *Manager) RecordSurfaceLost() (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level == LevelFallback && m.now().Sub(m.lastSurfaceSeen) >= m.recoveryWindow {
		m.level = LevelOffline
		return m.level, true
	}
	return m.level, false
}

// ConsecutiveFailures returns the current failure streak.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}
