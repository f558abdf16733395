// Package detect implements the per-category recognition ensembles: each
// category runs several independent strategies over the captured frame and a
// weighted vote merges their proposals into one confidence-scored result.
package detect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tiroq/tablewatch/pkg/cards"
)

// Category is a semantic detection domain.
type Category string

const (
	CategoryCards    Category = "cards"
	CategoryPot      Category = "pot"
	CategoryPlayers  Category = "players"
	CategoryActions  Category = "actions"
	CategoryBlinds   Category = "blinds"
	CategoryDealer   Category = "dealer"
	CategoryTimeouts Category = "timeouts"
)

// AllCategories returns every category in priority order (highest first).
// The fallback manager drops categories from the tail as levels degrade.
func AllCategories() []Category {
	return []Category{
		CategoryPot, CategoryCards, CategoryPlayers, CategoryBlinds,
		CategoryDealer, CategoryActions, CategoryTimeouts,
	}
}

// Kind tags the finite set of value shapes a detection can produce, so the
// combiner's grouping is checked at compile time rather than via reflection.
type Kind int

const (
	KindCards Kind = iota
	KindAmount
	KindBlinds
	KindPlayers
	KindAction
	KindSeat
	KindTimeout
)

// Value is a proposed detection payload. Key gives the exact-match grouping
// key; amounts additionally group by proximity in the combiner.
type Value interface {
	Kind() Kind
	Key() string
}

// CardsValue carries the visible board and hero cards.
type CardsValue struct {
	Board []cards.Card `json:"board"`
	Hero  []cards.Card `json:"hero"`
}

func (v CardsValue) Kind() Kind { return KindCards }

func (v CardsValue) Key() string {
	return "b:" + cards.Format(v.Board) + "|h:" + cards.Format(v.Hero)
}

// AmountValue is a monetary amount (pot size).
type AmountValue float64

func (v AmountValue) Kind() Kind  { return KindAmount }
func (v AmountValue) Key() string { return fmt.Sprintf("%.2f", float64(v)) }

// BlindsValue carries the table stakes.
type BlindsValue struct {
	Small float64 `json:"small"`
	Big   float64 `json:"big"`
	Ante  float64 `json:"ante"`
}

func (v BlindsValue) Kind() Kind { return KindBlinds }

func (v BlindsValue) Key() string {
	return fmt.Sprintf("%.2f/%.2f/%.2f", v.Small, v.Big, v.Ante)
}

// Player is one seated player's observed attributes.
type Player struct {
	Seat   int     `json:"seat"`
	Name   string  `json:"name"`
	Stack  float64 `json:"stack"`
	Active bool    `json:"active"`
}

// PlayersValue is the set of observed seats.
type PlayersValue []Player

func (v PlayersValue) Kind() Kind { return KindPlayers }

func (v PlayersValue) Key() string {
	sorted := make([]Player, len(v))
	copy(sorted, v)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seat < sorted[j].Seat })
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = fmt.Sprintf("%d:%s:%.2f:%t", p.Seat, p.Name, p.Stack, p.Active)
	}
	return strings.Join(parts, ",")
}

// ActionValue is one observed player action.
type ActionValue struct {
	Seat   int     `json:"seat"`
	Action string  `json:"action"` // fold, check, call, bet, raise, all-in
	Amount float64 `json:"amount"`
}

func (v ActionValue) Kind() Kind { return KindAction }

func (v ActionValue) Key() string {
	return fmt.Sprintf("%d:%s:%.2f", v.Seat, v.Action, v.Amount)
}

// SeatValue identifies a seat (dealer button position).
type SeatValue int

func (v SeatValue) Kind() Kind  { return KindSeat }
func (v SeatValue) Key() string { return fmt.Sprintf("seat%d", int(v)) }

// TimeoutValue is the acting seat's remaining decision time.
type TimeoutValue struct {
	Seat        int `json:"seat"`
	SecondsLeft int `json:"seconds_left"`
}

func (v TimeoutValue) Kind() Kind { return KindTimeout }

func (v TimeoutValue) Key() string {
	return fmt.Sprintf("%d:%ds", v.Seat, v.SecondsLeft)
}

// Candidate is one strategy's proposal for a category.
type Candidate struct {
	Strategy   string
	Value      Value
	Confidence float64
}

// Result is the ensemble's merged detection for a category in one cycle.
// Confidence is always in [0,1].
type Result struct {
	Category   Category  `json:"category"`
	Value      Value     `json:"value"`
	Confidence float64   `json:"confidence"`
	Strategies []string  `json:"strategies"` // contributors to the winning group
	DetectedAt time.Time `json:"detected_at"`
}
