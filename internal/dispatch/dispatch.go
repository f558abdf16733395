// Package dispatch owns the live TableState per tracked table. Each cycle it
// diffs the new detections against the prior state, emits change events for
// fields that moved beyond tolerance, and tracks the hand and street
// lifecycle. The state is replaced wholesale at the end of a cycle; readers
// never observe a partial update.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/internal/events"
	"github.com/tiroq/tablewatch/pkg/cards"
)

// Street is the betting round derived from the board card count.
type Street string

const (
	StreetNone    Street = ""
	StreetPreflop Street = "preflop"
	StreetFlop    Street = "flop"
	StreetTurn    Street = "turn"
	StreetRiver   Street = "river"
)

var streetOrder = map[Street]int{
	StreetNone: 0, StreetPreflop: 1, StreetFlop: 2, StreetTurn: 3, StreetRiver: 4,
}

// streetForBoard maps a board card count onto a street.
func streetForBoard(n int) Street {
	switch {
	case n >= 5:
		return StreetRiver
	case n == 4:
		return StreetTurn
	case n == 3:
		return StreetFlop
	default:
		return StreetPreflop
	}
}

// TableState is the aggregate detection state of one table.
type TableState struct {
	TableID    string               `json:"table_id"`
	Pot        float64              `json:"pot"`
	Board      []cards.Card         `json:"board"`
	Hero       []cards.Card         `json:"hero"`
	Players    []detect.Player      `json:"players"`
	ButtonSeat int                  `json:"button_seat"` // -1 when unknown
	Street     Street               `json:"street"`
	Blinds     detect.BlindsValue   `json:"blinds"`
	LastAction *detect.ActionValue  `json:"last_action,omitempty"`
	Timeout    *detect.TimeoutValue `json:"timeout,omitempty"`
	HandActive bool                 `json:"hand_active"`
	Fallback   bool                 `json:"fallback"` // true when served from stale cache
	UpdatedAt  time.Time            `json:"updated_at"`
}

// FieldChange is one field delta beyond tolerance.
type FieldChange struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old"`
	New   interface{} `json:"new"`
}

// Delta is the outcome of one Apply: the field changes plus any lifecycle
// transitions. Ephemeral; it exists only to drive event emission and cache
// invalidation.
type Delta struct {
	Changes       []FieldChange
	HandStart     bool
	HandEnd       bool
	StreetChanged bool
	Street        Street
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0 && !d.HandStart && !d.HandEnd && !d.StreetChanged
}

// HandBoundary reports whether the cache must be cleared.
func (d Delta) HandBoundary() bool { return d.HandStart || d.HandEnd }

// Dispatcher applies per-cycle detections to the table states and emits
// change events on the bus. Single-writer per design: only the driver loop
// calls Apply; State and Tables are safe for concurrent readers.
type Dispatcher struct {
	mu           sync.RWMutex
	states       map[string]*TableState
	bus          *events.Bus
	potTolerance float64
	now          func() time.Time
}

// New creates a dispatcher publishing to bus.
func New(bus *events.Bus, potTolerance float64) *Dispatcher {
	return &Dispatcher{
		states:       make(map[string]*TableState),
		bus:          bus,
		potTolerance: potTolerance,
		now:          time.Now,
	}
}

// Apply merges the cycle's accepted detections into the table's state,
// emitting one event per genuine change plus lifecycle events. Fields with
// no fresh detection carry their previous value forward.
func (d *Dispatcher) Apply(tableID string, results map[detect.Category]detect.Result, correlationID string) Delta {
	d.mu.Lock()
	defer d.mu.Unlock()

	old, ok := d.states[tableID]
	if !ok {
		old = &TableState{TableID: tableID, ButtonSeat: -1, Street: StreetNone}
	}

	next := cloneState(old)
	next.Fallback = false
	next.UpdatedAt = d.now()
	applyResults(next, results)

	var delta Delta

	// Lifecycle first: boundaries reset street tracking before field diffs
	// are interpreted.
	boardGrew := len(next.Board) > len(old.Board)
	boardCleared := len(next.Board) < len(old.Board)
	potReset := old.Pot > 0 && next.Pot == 0
	cardsAppeared := (len(old.Board) == 0 && len(old.Hero) == 0) &&
		(len(next.Board) > 0 || len(next.Hero) > 0)

	if old.HandActive && (potReset || boardCleared) {
		delta.HandEnd = true
		next.HandActive = false
		next.Street = StreetNone
		next.LastAction = nil
		next.Timeout = nil
	}
	if !old.HandActive || delta.HandEnd {
		if cardsAppeared || (delta.HandEnd && (len(next.Board) > 0 || len(next.Hero) > 0)) {
			delta.HandStart = true
			next.HandActive = true
			next.Street = streetForBoard(len(next.Board))
		}
	} else if next.HandActive {
		newStreet := streetForBoard(len(next.Board))
		if boardGrew && streetOrder[newStreet] > streetOrder[old.Street] {
			delta.StreetChanged = true
			delta.Street = newStreet
			next.Street = newStreet
		} else {
			// Street never regresses within a hand; a shrinking board
			// without a pot reset keeps the prior street.
			next.Street = old.Street
		}
	}

	delta.Changes = d.diff(old, next)

	d.states[tableID] = next
	d.emit(tableID, old, next, delta, correlationID)
	return delta
}

// applyResults copies each category's accepted value onto the state.
func applyResults(s *TableState, results map[detect.Category]detect.Result) {
	for category, r := range results {
		switch category {
		case detect.CategoryPot:
			if v, ok := r.Value.(detect.AmountValue); ok {
				s.Pot = float64(v)
			}
		case detect.CategoryCards:
			if v, ok := r.Value.(detect.CardsValue); ok {
				s.Board = v.Board
				s.Hero = v.Hero
			}
		case detect.CategoryPlayers:
			if v, ok := r.Value.(detect.PlayersValue); ok {
				s.Players = []detect.Player(v)
			}
		case detect.CategoryBlinds:
			if v, ok := r.Value.(detect.BlindsValue); ok {
				s.Blinds = v
			}
		case detect.CategoryDealer:
			if v, ok := r.Value.(detect.SeatValue); ok {
				s.ButtonSeat = int(v)
			}
		case detect.CategoryActions:
			if v, ok := r.Value.(detect.ActionValue); ok {
				vv := v
				s.LastAction = &vv
			}
		case detect.CategoryTimeouts:
			if v, ok := r.Value.(detect.TimeoutValue); ok {
				vv := v
				s.Timeout = &vv
			}
		}
	}
}

// diff collects field changes beyond tolerance. Pot uses the configured
// currency tolerance; card and player fields use exact inequality.
func (d *Dispatcher) diff(old, next *TableState) []FieldChange {
	var changes []FieldChange

	if abs(next.Pot-old.Pot) > d.potTolerance {
		changes = append(changes, FieldChange{Field: "pot", Old: old.Pot, New: next.Pot})
	}
	if !cards.Equal(old.Board, next.Board) {
		changes = append(changes, FieldChange{Field: "board", Old: cards.Format(old.Board), New: cards.Format(next.Board)})
	}
	if !cards.Equal(old.Hero, next.Hero) {
		changes = append(changes, FieldChange{Field: "hero", Old: cards.Format(old.Hero), New: cards.Format(next.Hero)})
	}
	if detect.PlayersValue(old.Players).Key() != detect.PlayersValue(next.Players).Key() {
		changes = append(changes, FieldChange{Field: "players", Old: old.Players, New: next.Players})
	}
	if old.Blinds != next.Blinds {
		changes = append(changes, FieldChange{Field: "blinds", Old: old.Blinds, New: next.Blinds})
	}
	if old.ButtonSeat != next.ButtonSeat {
		changes = append(changes, FieldChange{Field: "button", Old: old.ButtonSeat, New: next.ButtonSeat})
	}
	if !actionsEqual(old.LastAction, next.LastAction) {
		changes = append(changes, FieldChange{Field: "action", Old: old.LastAction, New: next.LastAction})
	}
	if !timeoutsEqual(old.Timeout, next.Timeout) {
		changes = append(changes, FieldChange{Field: "timeout", Old: old.Timeout, New: next.Timeout})
	}
	return changes
}

// emit publishes one event per field change plus the lifecycle events.
func (d *Dispatcher) emit(tableID string, old, next *TableState, delta Delta, correlationID string) {
	if d.bus == nil {
		return
	}

	if delta.HandEnd {
		d.bus.Publish(events.New(events.TypeHandEnd, events.SeverityInfo,
			fmt.Sprintf("hand ended on table %s", tableID),
			map[string]interface{}{"table_id": tableID, "pot": old.Pot}, correlationID))
	}
	if delta.HandStart {
		d.bus.Publish(events.New(events.TypeHandStart, events.SeverityInfo,
			fmt.Sprintf("new hand on table %s", tableID),
			map[string]interface{}{"table_id": tableID, "hero": cards.Format(next.Hero)}, correlationID))
	}
	if delta.StreetChanged {
		d.bus.Publish(events.New(events.TypeStreetChange, events.SeverityInfo,
			fmt.Sprintf("street is now %s on table %s", delta.Street, tableID),
			map[string]interface{}{"table_id": tableID, "street": string(delta.Street), "board": cards.Format(next.Board)}, correlationID))
	}

	for _, change := range delta.Changes {
		eventType, message := eventForField(change, tableID)
		d.bus.Publish(events.New(eventType, events.SeverityInfo, message,
			map[string]interface{}{
				"table_id": tableID,
				"field":    change.Field,
				"old":      change.Old,
				"new":      change.New,
			}, correlationID))
	}
}

func eventForField(change FieldChange, tableID string) (string, string) {
	switch change.Field {
	case "pot":
		return events.TypePotChanged, fmt.Sprintf("pot changed to %.2f on table %s", change.New, tableID)
	case "board":
		return events.TypeBoardChanged, fmt.Sprintf("board is now [%v] on table %s", change.New, tableID)
	case "hero":
		return events.TypeHeroChanged, fmt.Sprintf("hero cards are now [%v] on table %s", change.New, tableID)
	case "players":
		return events.TypePlayersChanged, fmt.Sprintf("players changed on table %s", tableID)
	case "blinds":
		return events.TypeBlindsChanged, fmt.Sprintf("blinds changed on table %s", tableID)
	case "button":
		return events.TypeButtonMoved, fmt.Sprintf("button moved to seat %v on table %s", change.New, tableID)
	case "action":
		return events.TypeActionObserved, fmt.Sprintf("action observed on table %s", tableID)
	default:
		return events.TypeTimeoutTicked, fmt.Sprintf("decision timer updated on table %s", tableID)
	}
}

// MarkFallback flags the table's state as served-from-cache. Readers see the
// flag on the next State call; no events are emitted for the flag itself.
func (d *Dispatcher) MarkFallback(tableID string, flagged bool) {
	d.mu.Lock()
	if s, ok := d.states[tableID]; ok {
		s.Fallback = flagged
	}
	d.mu.Unlock()
}

// State returns a copy of the table's current state.
func (d *Dispatcher) State(tableID string) (TableState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.states[tableID]
	if !ok {
		return TableState{}, false
	}
	return *cloneState(s), true
}

// Tables returns copies of every tracked table state.
func (d *Dispatcher) Tables() []TableState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]TableState, 0, len(d.states))
	for _, s := range d.states {
		out = append(out, *cloneState(s))
	}
	return out
}

func cloneState(s *TableState) *TableState {
	cp := *s
	cp.Board = append([]cards.Card(nil), s.Board...)
	cp.Hero = append([]cards.Card(nil), s.Hero...)
	cp.Players = append([]detect.Player(nil), s.Players...)
	if s.LastAction != nil {
		a := *s.LastAction
		cp.LastAction = &a
	}
	if s.Timeout != nil {
		t := *s.Timeout
		cp.Timeout = &t
	}
	return &cp
}

func actionsEqual(a, b *detect.ActionValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timeoutsEqual(a, b *detect.TimeoutValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
