package detect

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/config"
)

const (
	// agreementBonus is added when at least two strategies propose the exact
	// same value.
	agreementBonus = 0.05
	// ambiguityMargin is the aggregate-score gap under which the top two
	// groups are considered ambiguous.
	ambiguityMargin = 0.05
	// ambiguityMultiplier reduces confidence on ambiguous wins; the result is
	// still produced and downstream gating decides acceptance.
	ambiguityMultiplier = 0.9
	// amountProximity groups monetary proposals within this fraction of the
	// larger amount, absorbing OCR decimal jitter.
	amountProximity = 0.005
)

// Strategy proposes a value for its ensemble's category. A nil value with a
// nil error means "nothing recognized this cycle" and is not a fault.
// Strategies must be read-only over the frame.
type Strategy interface {
	Name() string
	Detect(frame *capture.Frame) (Value, float64, error)
}

// Report describes one ensemble run for metrics and diagnostics.
type Report struct {
	Candidates int
	Faults     map[string]error // per-strategy isolated failures
	Ambiguous  bool
}

// Ensemble merges the proposals of several independent strategies for one
// category. A single strategy fault never prevents the others from voting.
type Ensemble struct {
	category   Category
	strategies []Strategy

	mu          sync.Mutex
	lastSuccess string // most recently winning strategy, final tie-break
}

// NewEnsemble creates an ensemble over the given strategies.
func NewEnsemble(category Category, strategies ...Strategy) *Ensemble {
	return &Ensemble{category: category, strategies: strategies}
}

// Category returns the ensemble's detection domain.
func (e *Ensemble) Category() Category { return e.category }

// Size returns the number of registered strategies.
func (e *Ensemble) Size() int { return len(e.strategies) }

// Run invokes every strategy, isolating faults, and combines the surviving
// candidates into a single Result. ok is false when no strategy produced a
// usable candidate (a category-level failure, not an error).
func (e *Ensemble) Run(frame *capture.Frame, cfg *config.Config) (Result, Report, bool) {
	report := Report{Faults: make(map[string]error)}

	candidates := make([]Candidate, 0, len(e.strategies))
	for _, s := range e.strategies {
		value, confidence, err := detectIsolated(s, frame)
		if err != nil {
			report.Faults[s.Name()] = err
			continue
		}
		if value == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Strategy:   s.Name(),
			Value:      value,
			Confidence: clamp01(confidence),
		})
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return Result{}, report, false
	}

	result, ambiguous := e.combine(candidates, cfg)
	report.Ambiguous = ambiguous

	e.mu.Lock()
	e.lastSuccess = result.Strategies[0]
	e.mu.Unlock()
	return result, report, true
}

// detectIsolated runs one strategy and converts panics into faults so a
// broken strategy cannot take the ensemble down.
func detectIsolated(s Strategy, frame *capture.Frame) (value Value, confidence float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, confidence = nil, 0
			err = &StrategyPanicError{Strategy: s.Name(), Panic: r}
		}
	}()
	return s.Detect(frame)
}

// group is one cluster of candidates proposing the same (or, for amounts,
// near-identical) value.
type group struct {
	members   []Candidate
	aggregate float64
	topConf   float64 // highest individual confidence in the group
	exact     bool    // members agree exactly (same Key)
}

func (e *Ensemble) combine(candidates []Candidate, cfg *config.Config) (Result, bool) {
	groups := e.groupCandidates(candidates)

	for i := range groups {
		g := &groups[i]
		for _, m := range g.members {
			g.aggregate += cfg.Weight(m.Strategy) * m.Confidence
			if m.Confidence > g.topConf {
				g.topConf = m.Confidence
			}
		}
		if g.exact && len(g.members) >= 2 {
			g.aggregate += agreementBonus
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].aggregate != groups[j].aggregate {
			return groups[i].aggregate > groups[j].aggregate
		}
		// Tie-breaks: top individual confidence, then strategy priority,
		// then the most recently successful strategy for this category.
		if groups[i].topConf != groups[j].topConf {
			return groups[i].topConf > groups[j].topConf
		}
		pi, pj := e.bestPriority(groups[i], cfg), e.bestPriority(groups[j], cfg)
		if pi != pj {
			return pi < pj
		}
		e.mu.Lock()
		last := e.lastSuccess
		e.mu.Unlock()
		return containsStrategy(groups[i], last) && !containsStrategy(groups[j], last)
	})

	winner := groups[0]
	ambiguous := len(groups) > 1 && winner.aggregate-groups[1].aggregate < ambiguityMargin

	confidence := clamp01(winner.aggregate)
	if ambiguous {
		confidence *= ambiguityMultiplier
	}

	// The representative value is the highest-confidence member's proposal;
	// for exact groups all members carry the same value anyway.
	best := winner.members[0]
	names := make([]string, len(winner.members))
	for i, m := range winner.members {
		names[i] = m.Strategy
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return priorityIndex(cfg, names[i]) < priorityIndex(cfg, names[j])
	})

	return Result{
		Category:   e.category,
		Value:      best.Value,
		Confidence: confidence,
		Strategies: names,
		DetectedAt: time.Now(),
	}, ambiguous
}

// groupCandidates clusters candidates by proposed value: exact Key match for
// discrete values, proximity buckets for monetary amounts.
func (e *Ensemble) groupCandidates(candidates []Candidate) []group {
	if len(candidates) > 0 && candidates[0].Value.Kind() == KindAmount {
		return groupAmounts(candidates)
	}
	index := make(map[string]int)
	var groups []group
	for _, c := range candidates {
		key := c.Value.Key()
		if i, ok := index[key]; ok {
			groups[i].members = append(groups[i].members, c)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, group{members: []Candidate{c}, exact: true})
	}
	return groups
}

// groupAmounts clusters monetary proposals within amountProximity of each
// other. The exact flag (agreement bonus) still requires identical cents.
func groupAmounts(candidates []Candidate) []group {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return float64(sorted[i].Value.(AmountValue)) < float64(sorted[j].Value.(AmountValue))
	})

	var groups []group
	for _, c := range sorted {
		amount := float64(c.Value.(AmountValue))
		placed := false
		for i := range groups {
			ref := float64(groups[i].members[0].Value.(AmountValue))
			larger := math.Max(math.Abs(ref), math.Abs(amount))
			if math.Abs(ref-amount) <= larger*amountProximity {
				groups[i].members = append(groups[i].members, c)
				if c.Value.Key() != groups[i].members[0].Value.Key() {
					groups[i].exact = false
				}
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{members: []Candidate{c}, exact: true})
		}
	}
	return groups
}

func (e *Ensemble) bestPriority(g group, cfg *config.Config) int {
	best := math.MaxInt32
	for _, m := range g.members {
		if p := priorityIndex(cfg, m.Strategy); p < best {
			best = p
		}
	}
	return best
}

func priorityIndex(cfg *config.Config, strategy string) int {
	for i, name := range cfg.StrategyPriority {
		if name == strategy {
			return i
		}
	}
	return math.MaxInt32
}

func containsStrategy(g group, name string) bool {
	if name == "" {
		return false
	}
	for _, m := range g.members {
		if m.Strategy == name {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
