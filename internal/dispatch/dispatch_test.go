package dispatch

import (
	"testing"

	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/internal/events"
	"github.com/tiroq/tablewatch/pkg/cards"
	"github.com/tiroq/tablewatch/testutil"
)

func potResult(amount float64) detect.Result {
	return detect.Result{
		Category:   detect.CategoryPot,
		Value:      detect.AmountValue(amount),
		Confidence: 0.9,
	}
}

func cardsResult(board, hero string) detect.Result {
	b, _ := cards.ParseList(board)
	h, _ := cards.ParseList(hero)
	return detect.Result{
		Category:   detect.CategoryCards,
		Value:      detect.CardsValue{Board: b, Hero: h},
		Confidence: 0.9,
	}
}

func drainTypes(bus *events.Bus) []string {
	var types []string
	for {
		e, ok := bus.Poll()
		if !ok {
			return types
		}
		types = append(types, e.Type)
	}
}

func TestApplyPotChangeEmitsSingleEvent(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot: potResult(10.00),
	}, "c1")
	drainTypes(bus)

	delta := d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot: potResult(10.50),
	}, "c2")

	testutil.AssertEqual(t, 1, len(delta.Changes), "changes for pot move")
	testutil.AssertEqual(t, "pot", delta.Changes[0].Field, "changed field")

	types := drainTypes(bus)
	testutil.AssertEqual(t, 1, len(types), "events emitted")
	testutil.AssertEqual(t, events.TypePotChanged, types[0], "event type")

	s, ok := d.State("t1")
	testutil.AssertTrue(t, ok, "state exists")
	testutil.AssertEqual(t, 10.50, s.Pot, "stored pot")
}

func TestApplyIdenticalResultsProduceEmptyDelta(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	results := map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(25.00),
		detect.CategoryCards: cardsResult("Ah Kd 7c", "Qs Qh"),
	}
	d.Apply("t1", results, "c1")
	drainTypes(bus)

	delta := d.Apply("t1", results, "c2")
	testutil.AssertTrue(t, delta.Empty(), "second apply is a no-op")
	testutil.AssertEqual(t, 0, bus.Len(), "no events for identical state")
}

func TestApplyPotWithinToleranceIsNoChange(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryPot: potResult(10.00)}, "c1")
	drainTypes(bus)

	delta := d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryPot: potResult(10.005)}, "c2")
	testutil.AssertTrue(t, delta.Empty(), "sub-tolerance pot wobble ignored")
}

func TestHandStartOnFirstCards(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	delta := d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryCards: cardsResult("", "As Kh"),
	}, "c1")

	testutil.AssertTrue(t, delta.HandStart, "hero cards begin a hand")
	testutil.AssertTrue(t, delta.HandBoundary(), "hand start is a boundary")

	s, _ := d.State("t1")
	testutil.AssertTrue(t, s.HandActive, "hand active after start")
	testutil.AssertEqual(t, StreetPreflop, s.Street, "street at hand start")
}

func TestStreetProgressionIsMonotonic(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryCards: cardsResult("", "As Kh")}, "c1")

	steps := []struct {
		board  string
		street Street
	}{
		{"Ah Kd 7c", StreetFlop},
		{"Ah Kd 7c 2s", StreetTurn},
		{"Ah Kd 7c 2s 9d", StreetRiver},
	}
	for _, step := range steps {
		delta := d.Apply("t1", map[detect.Category]detect.Result{
			detect.CategoryCards: cardsResult(step.board, "As Kh"),
		}, "c")
		testutil.AssertTrue(t, delta.StreetChanged, "street advances on "+step.board)
		testutil.AssertEqual(t, step.street, delta.Street, "street value")
	}

	// Re-applying the same board leaves the street in place.
	d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(40.00),
		detect.CategoryCards: cardsResult("Ah Kd 7c 2s 9d", "As Kh"),
	}, "c")
	s, _ := d.State("t1")
	testutil.AssertEqual(t, StreetRiver, s.Street, "street stays at river")
}

func TestHandEndOnPotReset(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(50.00),
		detect.CategoryCards: cardsResult("Ah Kd 7c", "As Kh"),
	}, "c1")
	drainTypes(bus)

	delta := d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(0),
		detect.CategoryCards: cardsResult("", ""),
	}, "c2")

	testutil.AssertTrue(t, delta.HandEnd, "pot reset ends the hand")
	testutil.AssertTrue(t, delta.HandBoundary(), "hand end is a boundary")

	s, _ := d.State("t1")
	testutil.AssertFalse(t, s.HandActive, "hand inactive after end")
	testutil.AssertEqual(t, StreetNone, s.Street, "street cleared")
	testutil.AssertNil(t, nilIfNoAction(s.LastAction), "stale action cleared")
}

func nilIfNoAction(a *detect.ActionValue) interface{} {
	if a == nil {
		return nil
	}
	return a
}

func TestBoardShrinkEndsAndStartsHand(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(80.00),
		detect.CategoryCards: cardsResult("Ah Kd 7c 2s 9d", "As Kh"),
	}, "c1")
	drainTypes(bus)

	// Next hand's flop appears directly: fewer board cards with a live pot.
	delta := d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryPot:   potResult(3.00),
		detect.CategoryCards: cardsResult("Qc Jd 4h", "7s 7d"),
	}, "c2")

	testutil.AssertTrue(t, delta.HandEnd, "board shrink ends the prior hand")
	testutil.AssertTrue(t, delta.HandStart, "new cards start the next hand")

	s, _ := d.State("t1")
	testutil.AssertTrue(t, s.HandActive, "new hand active")
	testutil.AssertEqual(t, StreetFlop, s.Street, "new hand street from board count")
}

func TestApplyTracksTablesIndependently(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryPot: potResult(10)}, "c1")
	d.Apply("t2", map[detect.Category]detect.Result{detect.CategoryPot: potResult(99)}, "c2")

	s1, _ := d.State("t1")
	s2, _ := d.State("t2")
	testutil.AssertEqual(t, 10.0, s1.Pot, "table one pot")
	testutil.AssertEqual(t, 99.0, s2.Pot, "table two pot")
	testutil.AssertEqual(t, 2, len(d.Tables()), "tracked tables")
}

func TestMarkFallbackFlagsState(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryPot: potResult(10)}, "c1")
	d.MarkFallback("t1", true)

	s, _ := d.State("t1")
	testutil.AssertTrue(t, s.Fallback, "fallback flag set")

	// A fresh Apply clears the flag.
	d.Apply("t1", map[detect.Category]detect.Result{detect.CategoryPot: potResult(10)}, "c2")
	s, _ = d.State("t1")
	testutil.AssertFalse(t, s.Fallback, "fresh cycle clears fallback flag")
}

func TestButtonAndBlindsChanges(t *testing.T) {
	bus := events.NewBus()
	d := New(bus, 0.01)

	d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryDealer: {Category: detect.CategoryDealer, Value: detect.SeatValue(2), Confidence: 0.8},
		detect.CategoryBlinds: {Category: detect.CategoryBlinds, Value: detect.BlindsValue{Small: 1, Big: 2}, Confidence: 0.8},
	}, "c1")
	drainTypes(bus)

	delta := d.Apply("t1", map[detect.Category]detect.Result{
		detect.CategoryDealer: {Category: detect.CategoryDealer, Value: detect.SeatValue(3), Confidence: 0.8},
		detect.CategoryBlinds: {Category: detect.CategoryBlinds, Value: detect.BlindsValue{Small: 2, Big: 4}, Confidence: 0.8},
	}, "c2")

	testutil.AssertEqual(t, 2, len(delta.Changes), "button and blinds both changed")
	types := drainTypes(bus)
	testutil.AssertEqual(t, 2, len(types), "one event per change")
}
