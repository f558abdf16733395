package fallback

import (
	"testing"
	"time"

	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/testutil"
)

func TestThreeFailuresDropOneLevel(t *testing.T) {
	m := New(3, time.Minute)
	testutil.AssertEqual(t, LevelFull, m.Level(), "starts at full")

	_, changed := m.RecordFailure()
	testutil.AssertFalse(t, changed, "first failure holds level")
	_, changed = m.RecordFailure()
	testutil.AssertFalse(t, changed, "second failure holds level")

	level, changed := m.RecordFailure()
	testutil.AssertTrue(t, changed, "third failure degrades")
	testutil.AssertEqual(t, LevelPartial, level, "exactly one step down")
	testutil.AssertEqual(t, 0, m.ConsecutiveFailures(), "streak resets after a drop")
}

func TestSingleSuccessRecoversOneLevel(t *testing.T) {
	m := New(3, time.Minute)
	for i := 0; i < 6; i++ {
		m.RecordFailure()
	}
	testutil.AssertEqual(t, LevelMinimal, m.Level(), "two drops after six failures")

	level, changed := m.RecordSuccess()
	testutil.AssertTrue(t, changed, "one success recovers")
	testutil.AssertEqual(t, LevelPartial, level, "exactly one step up")

	level, _ = m.RecordSuccess()
	testutil.AssertEqual(t, LevelFull, level, "back to full")

	_, changed = m.RecordSuccess()
	testutil.AssertFalse(t, changed, "full is the ceiling")
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	m := New(3, time.Minute)
	m.RecordFailure()
	m.RecordFailure()
	m.RecordSuccess()

	m.RecordFailure()
	m.RecordFailure()
	testutil.AssertEqual(t, LevelFull, m.Level(), "streak restarted, no drop yet")
}

func TestFailuresFloorAtFallback(t *testing.T) {
	m := New(1, time.Minute)
	for i := 0; i < 10; i++ {
		m.RecordFailure()
	}
	testutil.AssertEqual(t, LevelFallback, m.Level(), "failures alone never go offline")
}

func TestOfflineRequiresPersistentSurfaceLoss(t *testing.T) {
	now := time.Now()
	m := NewWithClock(1, 30*time.Second, func() time.Time { return now })

	// Reach the fallback floor.
	for i := 0; i < 4; i++ {
		m.RecordFailure()
	}
	testutil.AssertEqual(t, LevelFallback, m.Level(), "at floor")

	_, changed := m.RecordSurfaceLost()
	testutil.AssertFalse(t, changed, "loss inside the window holds the level")

	now = now.Add(31 * time.Second)
	level, changed := m.RecordSurfaceLost()
	testutil.AssertTrue(t, changed, "persistent loss goes offline")
	testutil.AssertEqual(t, LevelOffline, level, "offline reached")
}

func TestSurfaceSeenResetsLossWindow(t *testing.T) {
	now := time.Now()
	m := NewWithClock(1, 30*time.Second, func() time.Time { return now })
	for i := 0; i < 4; i++ {
		m.RecordFailure()
	}

	now = now.Add(20 * time.Second)
	m.RecordSurfaceSeen()
	now = now.Add(20 * time.Second)

	_, changed := m.RecordSurfaceLost()
	testutil.AssertFalse(t, changed, "window restarted by the sighting")
}

func TestSurfaceLossAboveFallbackDoesNotGoOffline(t *testing.T) {
	now := time.Now()
	m := NewWithClock(3, time.Second, func() time.Time { return now })

	now = now.Add(time.Minute)
	_, changed := m.RecordSurfaceLost()
	testutil.AssertFalse(t, changed, "offline only from the fallback floor")
	testutil.AssertEqual(t, LevelFull, m.Level(), "level untouched")
}

func TestEnabledCategoriesPerLevel(t *testing.T) {
	testutil.AssertEqual(t, len(detect.AllCategories()), len(LevelFull.EnabledCategories()), "full runs everything")
	testutil.AssertEqual(t, 5, len(LevelPartial.EnabledCategories()), "partial drops the tail")
	testutil.AssertEqual(t, 2, len(LevelMinimal.EnabledCategories()), "minimal set")
	testutil.AssertEqual(t, 2, len(LevelFallback.EnabledCategories()), "fallback still observes the minimal set")
	testutil.AssertEqual(t, 2, len(LevelOffline.EnabledCategories()), "offline still observes the minimal set")
}
