// Package window classifies candidate visual surfaces (OS windows, browser
// tabs) by likely relevance to a card-game table. Classification is a pure
// function of the surface snapshot and the configured rule table; it never
// touches the OS itself.
package window

import (
	"sort"
	"strings"
	"time"
)

// Surface describes one candidate visual surface as reported by the host
// environment for the current cycle.
type Surface struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	W         int       `json:"w"`
	H         int       `json:"h"`
	Visible   bool      `json:"visible"`
	FocusedAt time.Time `json:"focused_at"` // zero when never focused
}

// Area returns the surface's visible area in pixels.
func (s Surface) Area() int {
	if s.W < 0 || s.H < 0 {
		return 0
	}
	return s.W * s.H
}

// Priority labels a classified surface.
type Priority int

const (
	Excluded Priority = iota
	Low
	Medium
	High
)

// String returns the label name.
func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "excluded"
	}
}

// Classification pairs a surface with its assigned priority.
type Classification struct {
	Surface  Surface
	Priority Priority
}

// Rules is the configurable rule table driving classification.
type Rules struct {
	HighHints    []string // title fragments marking highly relevant surfaces
	MediumHints  []string // weaker relevance hints
	ExcludeHints []string // fragments marking surfaces to never consider
}

// Classifier scores surfaces against a rule table.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a classifier from the given rule table. Hint matching
// is case-insensitive substring matching.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Score assigns a priority to a single surface. Invisible surfaces and
// surfaces matching an exclusion hint are Excluded; exclusion wins over any
// positive hint.
func (c *Classifier) Score(s Surface) Priority {
	if !s.Visible || s.Area() == 0 {
		return Excluded
	}
	title := strings.ToLower(s.Title)
	for _, hint := range c.rules.ExcludeHints {
		if hint != "" && strings.Contains(title, strings.ToLower(hint)) {
			return Excluded
		}
	}
	for _, hint := range c.rules.HighHints {
		if hint != "" && strings.Contains(title, strings.ToLower(hint)) {
			return High
		}
	}
	for _, hint := range c.rules.MediumHints {
		if hint != "" && strings.Contains(title, strings.ToLower(hint)) {
			return Medium
		}
	}
	return Low
}

// Classify scores all surfaces and returns the non-excluded ones ordered by
// priority, then larger visible area, then most recently focused. Excluded
// surfaces never appear in the result. Empty input yields an empty result.
func (c *Classifier) Classify(surfaces []Surface) []Classification {
	out := make([]Classification, 0, len(surfaces))
	for _, s := range surfaces {
		p := c.Score(s)
		if p == Excluded {
			continue
		}
		out = append(out, Classification{Surface: s, Priority: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if ai, aj := out[i].Surface.Area(), out[j].Surface.Area(); ai != aj {
			return ai > aj
		}
		return out[i].Surface.FocusedAt.After(out[j].Surface.FocusedAt)
	})
	return out
}

// Best returns the highest-ranked surface, if any.
func (c *Classifier) Best(surfaces []Surface) (Classification, bool) {
	ranked := c.Classify(surfaces)
	if len(ranked) == 0 {
		return Classification{}, false
	}
	return ranked[0], true
}
