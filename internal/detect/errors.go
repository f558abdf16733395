package detect

import "fmt"

// StrategyPanicError wraps a recovered panic from a strategy invocation.
// It is reported as a per-strategy fault and never propagates.
type StrategyPanicError struct {
	Strategy string
	Panic    interface{}
}

func (e *StrategyPanicError) Error() string {
	return fmt.Sprintf("strategy %s panicked: %v", e.Strategy, e.Panic)
}
