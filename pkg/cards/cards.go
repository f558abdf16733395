// Package cards provides the playing-card model shared by detection results
// and downstream consumers.
package cards

import (
	"fmt"
	"sort"
	"strings"
)

// Suit identifies one of the four card suits.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

// Rank identifies a card rank. Ace is high.
type Rank uint8

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankChars = map[Rank]byte{
	Two: '2', Three: '3', Four: '4', Five: '5', Six: '6', Seven: '7',
	Eight: '8', Nine: '9', Ten: 'T', Jack: 'J', Queen: 'Q', King: 'K', Ace: 'A',
}

var suitChars = map[Suit]byte{
	Clubs: 'c', Diamonds: 'd', Hearts: 'h', Spades: 's',
}

// Card is a single playing card.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// New creates a Card with validation.
func New(rank Rank, suit Suit) (Card, error) {
	if rank < Two || rank > Ace {
		return Card{}, fmt.Errorf("invalid rank %d", rank)
	}
	if suit > Spades {
		return Card{}, fmt.Errorf("invalid suit %d", suit)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// String renders the card in compact notation, e.g. "Ah" or "Td".
func (c Card) String() string {
	r, ok := rankChars[c.Rank]
	if !ok {
		return "??"
	}
	s, ok := suitChars[c.Suit]
	if !ok {
		return "??"
	}
	return string([]byte{r, s})
}

// IsRed reports whether the card's suit is hearts or diamonds.
func (c Card) IsRed() bool {
	return c.Suit == Hearts || c.Suit == Diamonds
}

// Parse converts compact notation ("Ah", "td", "10s") into a Card.
func Parse(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Card{}, fmt.Errorf("empty card string")
	}
	// "10" is accepted as an alias for "T"
	if strings.HasPrefix(s, "10") {
		s = "T" + s[2:]
	}
	if len(s) != 2 {
		return Card{}, fmt.Errorf("malformed card %q", s)
	}

	var rank Rank
	found := false
	rc := strings.ToUpper(s[:1])[0]
	for r, ch := range rankChars {
		if ch == rc {
			rank = r
			found = true
			break
		}
	}
	if !found {
		return Card{}, fmt.Errorf("unknown rank %q", s[:1])
	}

	var suit Suit
	found = false
	sc := strings.ToLower(s[1:])[0]
	for su, ch := range suitChars {
		if ch == sc {
			suit = su
			found = true
			break
		}
	}
	if !found {
		return Card{}, fmt.Errorf("unknown suit %q", s[1:])
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// ParseList converts a space-separated list of cards ("Ah Kd 7c").
func ParseList(s string) ([]Card, error) {
	fields := strings.Fields(s)
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := Parse(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Format renders a list of cards space-separated.
func Format(cs []Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two card lists are identical, order-sensitive.
func Equal(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sorted returns a copy sorted by rank descending, then suit, giving a
// canonical order for grouping keys.
func Sorted(cs []Card) []Card {
	out := make([]Card, len(cs))
	copy(out, cs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Suit < out[j].Suit
	})
	return out
}
