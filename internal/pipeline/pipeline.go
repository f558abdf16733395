// Package pipeline drives the detection cycle: surface classification, frame
// capture, ensemble detection under the active degradation level, confidence
// gating, state dispatch, and health accounting. The engine owns no policy of
// its own beyond sequencing; every knob comes from the injected configuration
// provider and every collaborator is injected, so tests can run a cycle with
// scripted captures and fake strategies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/tablewatch/internal/cache"
	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/config"
	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/internal/diaglog"
	"github.com/tiroq/tablewatch/internal/dispatch"
	"github.com/tiroq/tablewatch/internal/events"
	"github.com/tiroq/tablewatch/internal/fallback"
	"github.com/tiroq/tablewatch/internal/imaging"
	"github.com/tiroq/tablewatch/internal/ipc"
	"github.com/tiroq/tablewatch/internal/metrics"
	"github.com/tiroq/tablewatch/internal/window"
	"github.com/tiroq/tablewatch/pkg/cards"
)

// detectWorkers bounds concurrent category detection per cycle.
const detectWorkers = 3

// advisoryCooldown spaces repeated accuracy advisories per category.
const advisoryCooldown = time.Minute

// captureTimeout bounds one capture attempt so a wedged platform call cannot
// stall the driver loop. The browser backend carries its own screenshot
// timeout; this cap covers every backend uniformly.
const captureTimeout = 5 * time.Second

// Options wires the engine's collaborators. Provider, Capturer, Surfaces,
// Ensembles, Bus and Dispatcher are required; the rest default sensibly.
type Options struct {
	Provider  *config.Provider
	Capturer  capture.Capturer
	Surfaces  capture.SurfaceProvider
	Ensembles map[detect.Category]*detect.Ensemble

	Bus        *events.Bus
	Dispatcher *dispatch.Dispatcher
	Cache      *cache.Cache
	Fallback   *fallback.Manager
	Metrics    *metrics.Tracker
	DiagLog    *diaglog.Logger

	Clock func() time.Time
}

// Engine sequences detection cycles.
type Engine struct {
	provider  *config.Provider
	capturer  capture.Capturer
	surfaces  capture.SurfaceProvider
	ensembles map[detect.Category]*detect.Ensemble

	bus        *events.Bus
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	fallback   *fallback.Manager
	metrics    *metrics.Tracker
	dlog       *diaglog.Logger
	now        func() time.Time

	mu           sync.Mutex
	paused       bool
	lastHash     map[string]uint64 // per-table mean hash of the previous frame
	titles       map[string]string
	lastAdvisory map[detect.Category]time.Time
	lastError    string
}

// New validates options and builds an engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("pipeline: config provider is required")
	case opts.Capturer == nil:
		return nil, errors.New("pipeline: capturer is required")
	case opts.Surfaces == nil:
		return nil, errors.New("pipeline: surface provider is required")
	case len(opts.Ensembles) == 0:
		return nil, errors.New("pipeline: at least one ensemble is required")
	case opts.Bus == nil:
		return nil, errors.New("pipeline: event bus is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	}

	cfg := opts.Provider.Get()
	if opts.Cache == nil {
		opts.Cache = cache.New()
	}
	if opts.Fallback == nil {
		opts.Fallback = fallback.New(cfg.FailureThreshold,
			time.Duration(cfg.RecoveryWindowS)*time.Second)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewTracker()
	}
	if opts.DiagLog == nil {
		opts.DiagLog = diaglog.NewNoOp()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Engine{
		provider:     opts.Provider,
		capturer:     opts.Capturer,
		surfaces:     opts.Surfaces,
		ensembles:    opts.Ensembles,
		bus:          opts.Bus,
		dispatcher:   opts.Dispatcher,
		cache:        opts.Cache,
		fallback:     opts.Fallback,
		metrics:      opts.Metrics,
		dlog:         opts.DiagLog,
		now:          opts.Clock,
		lastHash:     make(map[string]uint64),
		titles:       make(map[string]string),
		lastAdvisory: make(map[detect.Category]time.Time),
	}, nil
}

// Run executes cycles at the configured interval until ctx is done. The
// interval is re-read every cycle so a config reload takes effect without
// restart.
func (e *Engine) Run(ctx context.Context) {
	for {
		interval := time.Duration(e.provider.Get().CycleIntervalMs) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if e.Paused() {
			continue
		}
		e.RunCycle(ctx)
	}
}

// Pause suspends detection cycles; state and cache are retained.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume restarts detection cycles.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

// Paused reports whether cycles are suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// RunCycle executes exactly one detection cycle. Exported so tests can drive
// the engine deterministically without the ticker.
func (e *Engine) RunCycle(ctx context.Context) {
	started := e.now()
	correlationID := uuid.NewString()
	cfg := e.provider.Get()

	e.dlog.Log(diaglog.LogEntry{
		Component:     diaglog.ComponentPipeline,
		Event:         diaglog.EventCycleStart,
		CorrelationID: correlationID,
	})

	surface, ok := e.selectSurface(cfg, correlationID)
	if !ok {
		return
	}
	tableID := surface.ID

	captureCtx, cancelCapture := context.WithTimeout(ctx, captureTimeout)
	frame, err := e.capturer.Capture(captureCtx, surface)
	cancelCapture()
	if err != nil {
		e.handleCaptureError(tableID, err, correlationID)
		return
	}
	e.fallback.RecordSurfaceSeen()

	e.mu.Lock()
	e.titles[tableID] = frame.SurfaceTitle
	prevHash, hadHash := e.lastHash[tableID]
	hash := imaging.MeanHash(frame.Image)
	e.lastHash[tableID] = hash
	e.mu.Unlock()

	if hadHash && imaging.Similarity(prevHash, hash) >= cfg.SimilarityThreshold {
		// Frame is visually unchanged; cached results stay authoritative and
		// detection is skipped entirely.
		e.dlog.Log(diaglog.LogEntry{
			Component:     diaglog.ComponentPipeline,
			Event:         diaglog.EventFrameUnchanged,
			TableID:       tableID,
			CorrelationID: correlationID,
		})
		return
	}

	level := e.fallback.Level()
	accepted, anyProduced := e.detectCategories(cfg, level, tableID, frame, correlationID)

	delta := e.dispatcher.Apply(tableID, accepted, correlationID)
	if level <= fallback.LevelFallback {
		e.dispatcher.MarkFallback(tableID, true)
	}
	if delta.HandBoundary() {
		// Per-hand values must not leak across the boundary. This cycle's
		// results belong to the new hand and are written below, after the
		// clear.
		e.cache.Clear()
	}
	ttl := time.Duration(cfg.CacheTTLMs) * time.Millisecond
	for category, result := range accepted {
		e.cache.Put(category, tableID, result, ttl)
	}

	e.updateLevel(cfg, accepted, anyProduced, correlationID)
	e.emitAdvisories(level, correlationID)
	e.cache.Sweep()

	e.dlog.Log(diaglog.LogEntry{
		Component:     diaglog.ComponentPipeline,
		Event:         diaglog.EventCycleComplete,
		TableID:       tableID,
		CorrelationID: correlationID,
		Payload: map[string]interface{}{
			"duration_ms": e.now().Sub(started).Milliseconds(),
			"accepted":    len(accepted),
			"level":       e.fallback.Level().String(),
		},
	})
}

// selectSurface classifies the current surfaces and picks the best table
// candidate. Absence of any candidate counts as surface loss.
func (e *Engine) selectSurface(cfg *config.Config, correlationID string) (window.Surface, bool) {
	classifier := window.NewClassifier(window.Rules{
		HighHints:    cfg.SurfaceHighHints,
		MediumHints:  cfg.SurfaceMediumHints,
		ExcludeHints: cfg.SurfaceExcludeHints,
	})

	surfaces, err := e.surfaces.Surfaces()
	if err == nil {
		if best, ok := classifier.Best(surfaces); ok {
			return best.Surface, true
		}
		err = errors.New("no relevant surface")
	}

	e.handleSurfaceLoss(err, correlationID)
	return window.Surface{}, false
}

// handleSurfaceLoss treats a cycle without any capturable surface as a capture
// failure: it feeds the failure streak so the level ladder descends, flags the
// last-known table states once they are no longer backed by live detection,
// and hands persistent loss to the fallback manager for the OFFLINE step.
func (e *Engine) handleSurfaceLoss(err error, correlationID string) {
	e.setLastError(err.Error())

	e.bus.Publish(events.New(events.TypeCaptureError, events.SeverityError,
		"capture failed: surface lost",
		map[string]interface{}{"reason": "surface_lost", "detail": err.Error()}, correlationID))

	if level, changed := e.fallback.RecordSurfaceLost(); changed {
		e.publishLevelChange(level, "surface lost beyond recovery window", correlationID)
	} else if level, changed := e.fallback.RecordFailure(); changed {
		e.publishLevelChange(level, "surface lost", correlationID)
	}

	if e.fallback.Level() <= fallback.LevelFallback {
		for _, t := range e.dispatcher.Tables() {
			e.dispatcher.MarkFallback(t.TableID, true)
		}
	}

	e.dlog.Log(diaglog.LogEntry{
		Component:     diaglog.ComponentClassifier,
		Event:         diaglog.EventCaptureFailed,
		Reason:        err.Error(),
		CorrelationID: correlationID,
	})
}

func (e *Engine) handleCaptureError(tableID string, err error, correlationID string) {
	reason := string(capture.ReasonPlatform)
	if ce, ok := capture.AsError(err); ok {
		reason = string(ce.Reason)
		if ce.Reason == capture.ReasonClosed {
			if level, changed := e.fallback.RecordSurfaceLost(); changed {
				e.publishLevelChange(level, "surface closed", correlationID)
			}
		}
	}
	e.setLastError(err.Error())

	e.bus.Publish(events.New(events.TypeCaptureError, events.SeverityError,
		fmt.Sprintf("capture failed: %s", reason),
		map[string]interface{}{"table_id": tableID, "reason": reason}, correlationID))

	if level, changed := e.fallback.RecordFailure(); changed {
		e.publishLevelChange(level, "consecutive capture failures", correlationID)
	}
	if e.fallback.Level() <= fallback.LevelFallback {
		for _, t := range e.dispatcher.Tables() {
			e.dispatcher.MarkFallback(t.TableID, true)
		}
	}

	e.dlog.Log(diaglog.LogEntry{
		Component:     diaglog.ComponentCapture,
		Event:         diaglog.EventCaptureFailed,
		TableID:       tableID,
		Reason:        reason,
		CorrelationID: correlationID,
	})
}

// outcome is one category's detection attempt within a cycle. cached outcomes
// served from the detection cache stay out of the health metrics, which track
// ensemble behavior only.
type outcome struct {
	category detect.Category
	result   detect.Result
	ok       bool
	cached   bool
	duration time.Duration
}

// detectCategories runs the enabled ensembles over the frame through a small
// worker pool and returns the results that clear the confidence gates.
// anyProduced reports whether any category produced a result at all, accepted
// or not.
func (e *Engine) detectCategories(cfg *config.Config, level fallback.Level, tableID string, frame *capture.Frame, correlationID string) (map[detect.Category]detect.Result, bool) {
	enabled := make([]detect.Category, 0, len(e.ensembles))
	for _, c := range level.EnabledCategories() {
		if _, ok := e.ensembles[c]; ok {
			enabled = append(enabled, c)
		}
	}

	jobs := make(chan detect.Category)
	outcomes := make(chan outcome, len(enabled))

	var wg sync.WaitGroup
	for w := 0; w < detectWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for category := range jobs {
				outcomes <- e.runCategory(cfg, category, tableID, frame, correlationID)
			}
		}()
	}
	for _, c := range enabled {
		jobs <- c
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	accepted := make(map[detect.Category]detect.Result)
	anyProduced := false
	for o := range outcomes {
		if !o.cached {
			e.metrics.Record(o.category, o.ok, o.result.Confidence, o.duration)
		}
		if !o.ok {
			continue
		}
		anyProduced = true
		if !cfg.ShouldEmit(o.result.Confidence, string(o.category)) {
			// Below the gate: no event, no cache entry, the previous value
			// stands.
			continue
		}
		accepted[o.category] = o.result
	}
	return accepted, anyProduced
}

// runCategory serves one category from cache when possible, otherwise runs
// its ensemble under a time budget proportional to the strategy count.
func (e *Engine) runCategory(cfg *config.Config, category detect.Category, tableID string, frame *capture.Frame, correlationID string) (o outcome) {
	o.category = category
	started := e.now()

	if cached, hit := e.cache.Get(category, tableID); hit {
		o.result, o.ok, o.cached = cached, true, true
		o.duration = e.now().Sub(started)
		e.dlog.Log(diaglog.LogEntry{
			Component:     diaglog.ComponentEnsemble,
			Event:         diaglog.EventCacheHit,
			TableID:       tableID,
			CorrelationID: correlationID,
			Payload:       map[string]interface{}{"category": string(category)},
		})
		return o
	}

	ensemble := e.ensembles[category]
	budget := time.Duration(cfg.StrategyTimeout) * time.Millisecond * time.Duration(ensemble.Size())

	type runOut struct {
		result detect.Result
		report detect.Report
		ok     bool
	}
	done := make(chan runOut, 1)
	go func() {
		result, report, ok := ensemble.Run(frame, cfg)
		done <- runOut{result, report, ok}
	}()

	select {
	case out := <-done:
		o.result, o.ok = out.result, out.ok
		for name, ferr := range out.report.Faults {
			e.dlog.Log(diaglog.LogEntry{
				Component:     diaglog.ComponentEnsemble,
				Event:         diaglog.EventStrategyFault,
				TableID:       tableID,
				Reason:        ferr.Error(),
				CorrelationID: correlationID,
				Payload:       map[string]interface{}{"category": string(category), "strategy": name},
			})
		}
	case <-time.After(budget):
		// The run finishes in the background and is discarded; the category
		// simply fails this cycle.
		e.dlog.Log(diaglog.LogEntry{
			Component:     diaglog.ComponentEnsemble,
			Event:         diaglog.EventCategoryFailed,
			TableID:       tableID,
			Reason:        "time budget exceeded",
			CorrelationID: correlationID,
			Payload:       map[string]interface{}{"category": string(category)},
		})
	}
	o.duration = e.now().Sub(started)
	return o
}

// updateLevel feeds the cycle outcome to the fallback manager. A cycle
// succeeds when every minimal category cleared the gates; it fails when
// nothing was produced at all. Middling cycles leave the streaks alone.
func (e *Engine) updateLevel(cfg *config.Config, accepted map[detect.Category]detect.Result, anyProduced bool, correlationID string) {
	minimalOK := true
	for _, c := range fallback.MinimalCategories() {
		if _, ok := accepted[c]; !ok {
			minimalOK = false
			break
		}
	}

	switch {
	case minimalOK:
		if level, changed := e.fallback.RecordSuccess(); changed {
			e.publishLevelChange(level, "successful cycle", correlationID)
		}
	case !anyProduced:
		if level, changed := e.fallback.RecordFailure(); changed {
			e.publishLevelChange(level, "all categories failed", correlationID)
		}
	}
}

func (e *Engine) publishLevelChange(level fallback.Level, reason, correlationID string) {
	severity := events.SeverityWarning
	if level == fallback.LevelFull {
		severity = events.SeverityInfo
	}
	e.bus.Publish(events.New(events.TypeLevelChanged, severity,
		fmt.Sprintf("degradation level is now %s (%s)", level, reason),
		map[string]interface{}{"level": level.String(), "reason": reason}, correlationID))
	e.dlog.Log(diaglog.LogEntry{
		Component:     diaglog.ComponentFallback,
		Event:         diaglog.EventLevelChanged,
		Reason:        reason,
		CorrelationID: correlationID,
		Payload:       map[string]interface{}{"level": level.String()},
	})
}

// emitAdvisories raises a WARNING per unhealthy category, rate-limited so a
// persistently weak category does not flood the stream.
func (e *Engine) emitAdvisories(level fallback.Level, correlationID string) {
	now := e.now()
	for _, category := range level.EnabledCategories() {
		unhealthy, reason := e.metrics.Unhealthy(category)
		if !unhealthy {
			continue
		}
		e.mu.Lock()
		last := e.lastAdvisory[category]
		if now.Sub(last) < advisoryCooldown {
			e.mu.Unlock()
			continue
		}
		e.lastAdvisory[category] = now
		e.mu.Unlock()

		e.bus.Publish(events.New(events.TypeAccuracyAdvisory, events.SeverityWarning,
			fmt.Sprintf("category %s accuracy degraded: %s", category, reason),
			map[string]interface{}{"category": string(category), "reason": reason}, correlationID))
	}
}

// TableState returns a copy of one table's current state. At OFFLINE no state
// is served at all; retained internals resume serving (fallback-flagged) once
// the session recovers.
func (e *Engine) TableState(tableID string) (dispatch.TableState, bool) {
	if e.fallback.Level() == fallback.LevelOffline {
		return dispatch.TableState{}, false
	}
	return e.dispatcher.State(tableID)
}

// Status assembles the daemon status snapshot for the ipc surface. Clients is
// left zero; the caller fills it from the broadcast hub.
func (e *Engine) Status() *ipc.StatusSnapshot {
	mode := ipc.ModeRunning
	if e.Paused() {
		mode = ipc.ModePaused
	}

	e.mu.Lock()
	lastError := e.lastError
	titles := make(map[string]string, len(e.titles))
	for k, v := range e.titles {
		titles[k] = v
	}
	e.mu.Unlock()

	// OFFLINE serves no table state; the level string is the whole story.
	var summaries []ipc.TableSummary
	if e.fallback.Level() != fallback.LevelOffline {
		tables := e.dispatcher.Tables()
		summaries = make([]ipc.TableSummary, 0, len(tables))
		for _, t := range tables {
			summaries = append(summaries, ipc.TableSummary{
				TableID:  t.TableID,
				Title:    titles[t.TableID],
				Pot:      t.Pot,
				Street:   string(t.Street),
				Hero:     cards.Format(t.Hero),
				Board:    cards.Format(t.Board),
				Fallback: t.Fallback,
			})
		}
	}

	categories := make(map[string]ipc.CategoryHealth)
	for category, s := range e.metrics.SnapshotAll() {
		categories[string(category)] = ipc.CategoryHealth{
			SuccessRate:    s.SuccessRate,
			MeanConfidence: s.MeanConfidence,
			P95Millis:      s.P95.Milliseconds(),
			Samples:        s.Count,
		}
	}

	return &ipc.StatusSnapshot{
		Mode:             mode,
		DegradationLevel: e.fallback.Level().String(),
		Tables:           summaries,
		Categories:       categories,
		QueuedEvents:     e.bus.Len(),
		LastError:        lastError,
		Timestamp:        e.now().UTC(),
	}
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}
