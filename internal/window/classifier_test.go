package window_test

import (
	"testing"
	"time"

	"github.com/tiroq/tablewatch/internal/window"
	"github.com/tiroq/tablewatch/testutil"
)

func defaultRules() window.Rules {
	return window.Rules{
		HighHints:    []string{"table", "hold'em", "no limit"},
		MediumHints:  []string{"poker", "lobby"},
		ExcludeHints: []string{"notes", "settings"},
	}
}

func TestScore(t *testing.T) {
	c := window.NewClassifier(defaultRules())

	cases := []struct {
		name    string
		surface window.Surface
		want    window.Priority
	}{
		{"table title", window.Surface{Title: "ExampleLobby - Table 5 - No Limit Hold'em", W: 800, H: 600, Visible: true}, window.High},
		{"lobby title", window.Surface{Title: "ExampleLobby - Cash Games", W: 800, H: 600, Visible: true}, window.Medium},
		{"unrelated title", window.Surface{Title: "Monthly Report.xlsx", W: 800, H: 600, Visible: true}, window.Low},
		{"excluded title", window.Surface{Title: "System Notes", W: 800, H: 600, Visible: true}, window.Excluded},
		{"exclusion beats table hint", window.Surface{Title: "Table Notes", W: 800, H: 600, Visible: true}, window.Excluded},
		{"invisible", window.Surface{Title: "Table 5", W: 800, H: 600, Visible: false}, window.Excluded},
		{"zero area", window.Surface{Title: "Table 5", W: 0, H: 600, Visible: true}, window.Excluded},
		{"case insensitive", window.Surface{Title: "TABLE 12", W: 800, H: 600, Visible: true}, window.High},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testutil.AssertEqual(t, tc.want, c.Score(tc.surface), "priority")
		})
	}
}

func TestClassifyOrdersByPriorityThenAreaThenFocus(t *testing.T) {
	c := window.NewClassifier(defaultRules())
	now := time.Now()

	surfaces := []window.Surface{
		{ID: "lobby", Title: "Poker Lobby", W: 1000, H: 800, Visible: true},
		{ID: "small-table", Title: "Table 1", W: 400, H: 300, Visible: true},
		{ID: "big-table", Title: "Table 2", W: 800, H: 600, Visible: true},
		{ID: "notes", Title: "Notes", W: 800, H: 600, Visible: true},
		{ID: "recent", Title: "Table 3", W: 400, H: 300, Visible: true, FocusedAt: now},
	}

	ranked := c.Classify(surfaces)
	testutil.AssertEqual(t, 4, len(ranked), "excluded surfaces omitted")
	testutil.AssertEqual(t, "big-table", ranked[0].Surface.ID, "largest high-priority first")
	testutil.AssertEqual(t, "recent", ranked[1].Surface.ID, "recent focus beats never-focused at same area")
	testutil.AssertEqual(t, "small-table", ranked[2].Surface.ID, "remaining high surface")
	testutil.AssertEqual(t, "lobby", ranked[3].Surface.ID, "medium priority last")
}

func TestClassifyEmptyInput(t *testing.T) {
	c := window.NewClassifier(defaultRules())
	testutil.AssertEqual(t, 0, len(c.Classify(nil)), "empty in, empty out")

	_, ok := c.Best(nil)
	testutil.AssertFalse(t, ok, "no best surface")
}

func TestBest(t *testing.T) {
	c := window.NewClassifier(defaultRules())
	best, ok := c.Best([]window.Surface{
		{ID: "a", Title: "Poker Lobby", W: 100, H: 100, Visible: true},
		{ID: "b", Title: "Table 9", W: 100, H: 100, Visible: true},
	})
	testutil.AssertTrue(t, ok, "best exists")
	testutil.AssertEqual(t, "b", best.Surface.ID, "table outranks lobby")
	testutil.AssertEqual(t, window.High, best.Priority, "priority label")
}
