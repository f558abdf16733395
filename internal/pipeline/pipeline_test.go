package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tiroq/tablewatch/internal/cache"
	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/config"
	"github.com/tiroq/tablewatch/internal/detect"
	"github.com/tiroq/tablewatch/internal/dispatch"
	"github.com/tiroq/tablewatch/internal/events"
	"github.com/tiroq/tablewatch/internal/fallback"
	"github.com/tiroq/tablewatch/internal/ipc"
	"github.com/tiroq/tablewatch/internal/window"
	"github.com/tiroq/tablewatch/pkg/cards"
	"github.com/tiroq/tablewatch/testutil"
)

type fakeStrategy struct {
	name  string
	value detect.Value
	conf  float64
	calls int32
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Detect(*capture.Frame) (detect.Value, float64, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.value, s.conf, nil
}

func (s *fakeStrategy) Calls() int { return int(atomic.LoadInt32(&s.calls)) }

func tableSurface() window.Surface {
	return window.Surface{ID: "w42", Title: "ExampleRoom - Table 5 - No Limit", W: 800, H: 600, Visible: true}
}

func heroCards(t *testing.T) detect.CardsValue {
	t.Helper()
	hero, err := cards.ParseList("As Kh")
	if err != nil {
		t.Fatalf("parse hero: %v", err)
	}
	return detect.CardsValue{Hero: hero}
}

// surfaceFeed is a mutable surface provider so tests can make the tracked
// table window vanish mid-run.
type surfaceFeed struct {
	mu   sync.Mutex
	list []window.Surface
}

func (f *surfaceFeed) set(surfaces ...window.Surface) {
	f.mu.Lock()
	f.list = surfaces
	f.mu.Unlock()
}

func (f *surfaceFeed) Surfaces() ([]window.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]window.Surface(nil), f.list...), nil
}

type fixture struct {
	engine   *Engine
	bus      *events.Bus
	cache    *cache.Cache
	fallback *fallback.Manager
	surfaces *surfaceFeed
	pot      *fakeStrategy
	cards    *fakeStrategy

	mu  sync.Mutex
	now time.Time
}

// clock feeds the fallback manager so tests can move time past the recovery
// window.
func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFixture(t *testing.T, cfg *config.Config, capturer capture.Capturer, pot, cardsStrat *fakeStrategy) *fixture {
	t.Helper()

	// Single-strategy ensembles: full weight so the strategy confidence maps
	// directly onto the aggregate.
	cfg.StrategyWeights[pot.name] = 1.0
	cfg.StrategyWeights[cardsStrat.name] = 1.0

	bus := events.NewBus()
	detCache := cache.New()
	feed := &surfaceFeed{}
	feed.set(tableSurface())

	fx := &fixture{
		bus: bus, cache: detCache, surfaces: feed,
		pot: pot, cards: cardsStrat, now: time.Now(),
	}
	fx.fallback = fallback.NewWithClock(cfg.FailureThreshold,
		time.Duration(cfg.RecoveryWindowS)*time.Second, fx.clock)

	engine, err := New(Options{
		Provider: config.NewProvider(cfg),
		Capturer: capturer,
		Surfaces: feed,
		Ensembles: map[detect.Category]*detect.Ensemble{
			detect.CategoryPot:   detect.NewEnsemble(detect.CategoryPot, pot),
			detect.CategoryCards: detect.NewEnsemble(detect.CategoryCards, cardsStrat),
		},
		Bus:        bus,
		Dispatcher: dispatch.New(bus, cfg.PotTolerance),
		Cache:      detCache,
		Fallback:   fx.fallback,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fx.engine = engine
	return fx
}

func drain(bus *events.Bus) []events.Event {
	var out []events.Event
	for {
		e, ok := bus.Poll()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func countType(es []events.Event, typ string) int {
	n := 0
	for _, e := range es {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestRunCycleEmitsPotChange(t *testing.T) {
	cfg := config.Default()
	capturer := testutil.NewScriptedCapturer().
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	fx.engine.RunCycle(context.Background())

	es := drain(fx.bus)
	testutil.AssertEqual(t, 1, countType(es, events.TypePotChanged), "one pot event")
	testutil.AssertEqual(t, 1, countType(es, events.TypeHandStart), "hand starts on hero cards")

	for _, e := range es {
		testutil.AssertNotEqual(t, "", e.CorrelationID, "events carry the cycle correlation id")
	}
}

func TestRunCycleBelowThresholdEmitsNothing(t *testing.T) {
	cfg := config.Default() // pot min confidence 0.65

	capturer := testutil.NewScriptedCapturer().
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	// Aggregate 0.60 sits below the pot gate of 0.65; cards produce nothing
	// at all.
	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.60}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: nil, conf: 0}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	fx.engine.RunCycle(context.Background())

	es := drain(fx.bus)
	testutil.AssertEqual(t, 0, countType(es, events.TypePotChanged), "no pot event below the gate")

	_, hit := fx.cache.Get(detect.CategoryPot, "w42")
	testutil.AssertFalse(t, hit, "rejected results are not cached")
}

func TestUnchangedFrameSkipsDetection(t *testing.T) {
	cfg := config.Default()

	frame := testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42")
	capturer := testutil.NewScriptedCapturer().QueueFrame(frame).QueueFrame(frame)

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	fx.engine.RunCycle(context.Background())
	first := fx.pot.Calls()
	testutil.AssertEqual(t, 1, first, "pot strategy ran on the first cycle")

	fx.engine.RunCycle(context.Background())
	testutil.AssertEqual(t, first, fx.pot.Calls(), "identical frame skips detection")
}

func TestCaptureFailuresDegradeThenRecover(t *testing.T) {
	cfg := config.Default() // failure threshold 3

	capturer := testutil.NewScriptedCapturer().
		QueueError(&capture.Error{SurfaceID: "w42", Reason: capture.ReasonPlatform}).
		QueueError(&capture.Error{SurfaceID: "w42", Reason: capture.ReasonPlatform}).
		QueueError(&capture.Error{SurfaceID: "w42", Reason: capture.ReasonPlatform}).
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		fx.engine.RunCycle(ctx)
	}
	testutil.AssertEqual(t, fallback.LevelPartial, fx.fallback.Level(), "three failures drop one level")

	es := drain(fx.bus)
	testutil.AssertEqual(t, 3, countType(es, events.TypeCaptureError), "each failure reported")
	testutil.AssertEqual(t, 1, countType(es, events.TypeLevelChanged), "single level transition")

	// One fully successful cycle recovers one level.
	fx.engine.RunCycle(ctx)
	testutil.AssertEqual(t, fallback.LevelFull, fx.fallback.Level(), "one success recovers")

	es = drain(fx.bus)
	testutil.AssertEqual(t, 1, countType(es, events.TypeLevelChanged), "recovery transition reported")
}

func TestCacheHitSkipsEnsemble(t *testing.T) {
	cfg := config.Default()

	// The second frame gets a bright region so its mean hash diverges and the
	// similarity gate does not short the cycle before the cache is consulted.
	first := testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42")
	second := testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42")
	testutil.PaintRect(second, image.Rect(40, 0, 80, 60), color.RGBA{240, 240, 240, 255})
	capturer := testutil.NewScriptedCapturer().QueueFrame(first).QueueFrame(second)

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	ctx := context.Background()
	fx.engine.RunCycle(ctx)
	calls := fx.pot.Calls()

	fx.engine.RunCycle(ctx)
	testutil.AssertEqual(t, calls, fx.pot.Calls(), "cached result served within TTL")

	status := fx.engine.Status()
	testutil.AssertEqual(t, 1, status.Categories["pot"].Samples, "cache hits stay out of detection metrics")
}

func TestSurfaceLossDegradesAndFlagsState(t *testing.T) {
	cfg := config.Default() // failure threshold 3
	capturer := testutil.NewScriptedCapturer().
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	ctx := context.Background()
	fx.engine.RunCycle(ctx)
	testutil.AssertEqual(t, fallback.LevelFull, fx.fallback.Level(), "healthy start")
	drain(fx.bus)

	// The table window vanishes entirely.
	fx.surfaces.set()
	for i := 0; i < 3; i++ {
		fx.engine.RunCycle(ctx)
	}
	testutil.AssertEqual(t, fallback.LevelPartial, fx.fallback.Level(), "vanished surface feeds the failure streak")

	es := drain(fx.bus)
	testutil.AssertEqual(t, 3, countType(es, events.TypeCaptureError), "each lost cycle reported")
	testutil.AssertEqual(t, 1, countType(es, events.TypeLevelChanged), "one transition after three losses")

	// Keep losing until the ladder floors at fallback.
	for i := 0; i < 6; i++ {
		fx.engine.RunCycle(ctx)
	}
	testutil.AssertEqual(t, fallback.LevelFallback, fx.fallback.Level(), "failures floor at fallback")

	state, ok := fx.engine.TableState("w42")
	testutil.AssertTrue(t, ok, "state still served at fallback")
	testutil.AssertTrue(t, state.Fallback, "served state carries the fallback flag")
}

func TestPersistentSurfaceLossGoesOffline(t *testing.T) {
	cfg := config.Default() // recovery window 60s
	capturer := testutil.NewScriptedCapturer().
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	ctx := context.Background()
	fx.engine.RunCycle(ctx)

	fx.surfaces.set()
	for i := 0; i < 9; i++ {
		fx.engine.RunCycle(ctx)
	}
	testutil.AssertEqual(t, fallback.LevelFallback, fx.fallback.Level(), "at the floor")

	fx.advance(time.Duration(cfg.RecoveryWindowS+1) * time.Second)
	fx.engine.RunCycle(ctx)
	testutil.AssertEqual(t, fallback.LevelOffline, fx.fallback.Level(), "persistent loss goes offline")

	_, ok := fx.engine.TableState("w42")
	testutil.AssertFalse(t, ok, "offline serves no table state")

	status := fx.engine.Status()
	testutil.AssertEqual(t, "offline", status.DegradationLevel, "offline level in snapshot")
	testutil.AssertEqual(t, 0, len(status.Tables), "offline snapshot carries no tables")
}

// deadlineCapturer records whether the capture context carried a deadline.
type deadlineCapturer struct {
	frame       *capture.Frame
	sawDeadline bool
}

func (d *deadlineCapturer) Name() string { return "deadline" }

func (d *deadlineCapturer) Capture(ctx context.Context, s window.Surface) (*capture.Frame, error) {
	_, d.sawDeadline = ctx.Deadline()
	f := *d.frame
	f.SurfaceID, f.SurfaceTitle = s.ID, s.Title
	return &f, nil
}

func TestCaptureRunsUnderPerCallDeadline(t *testing.T) {
	cfg := config.Default()
	capturer := &deadlineCapturer{frame: testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42")}

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(25.00), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	// The run context has no deadline of its own; a wedged backend must still
	// be cut off per call.
	fx.engine.RunCycle(context.Background())
	testutil.AssertTrue(t, capturer.sawDeadline, "capture context carries a deadline")
}

func TestStatusSnapshot(t *testing.T) {
	cfg := config.Default()
	capturer := testutil.NewScriptedCapturer().
		QueueFrame(testutil.SolidFrame(80, 60, color.RGBA{20, 90, 40, 255}, "w42"))

	pot := &fakeStrategy{name: "amount-ocr", value: detect.AmountValue(12.50), conf: 0.95}
	cardsStrat := &fakeStrategy{name: "card-ocr", value: heroCards(t), conf: 0.95}
	fx := newFixture(t, cfg, capturer, pot, cardsStrat)

	fx.engine.RunCycle(context.Background())

	status := fx.engine.Status()
	testutil.AssertEqual(t, "full", status.DegradationLevel, "level in snapshot")
	testutil.AssertEqual(t, 1, len(status.Tables), "table tracked")
	testutil.AssertEqual(t, 12.50, status.Tables[0].Pot, "pot in snapshot")
	testutil.AssertEqual(t, "As Kh", status.Tables[0].Hero, "hero cards in snapshot")

	state, ok := fx.engine.TableState(status.Tables[0].TableID)
	testutil.AssertTrue(t, ok, "table state queryable")
	testutil.AssertEqual(t, 12.50, state.Pot, "state pot matches snapshot")

	fx.engine.Pause()
	testutil.AssertEqual(t, ipc.ModePaused, fx.engine.Status().Mode, "paused mode reported")
	fx.engine.Resume()
	testutil.AssertEqual(t, ipc.ModeRunning, fx.engine.Status().Mode, "running mode reported")
}
