package interactive

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type manualTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) Chan() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()                  { t.stopped.Store(true) }

type manualTimer struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTimer) Chan() <-chan time.Time { return t.ch }
func (t *manualTimer) Stop() bool             { return !t.stopped.Swap(true) }

type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
	timers  []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{d: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{d: d, ch: make(chan time.Time)}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) ticker(d time.Duration) *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if t := c.tickers[i]; t.d == d && !t.stopped.Load() {
			return t
		}
	}
	return nil
}

func (c *manualClock) timer() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.timers) - 1; i >= 0; i-- {
		if t := c.timers[i]; !t.stopped.Load() {
			return t
		}
	}
	return nil
}

func (c *manualClock) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped.Load() {
			n++
		}
	}
	for _, t := range c.timers {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

func (c *manualClock) tick(t *testing.T, d time.Duration) {
	t.Helper()
	tk := c.ticker(d)
	if tk == nil {
		t.Fatalf("no active %v ticker", d)
	}
	select {
	case tk.ch <- c.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("runtime did not receive %v tick", d)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStepWrapsAndKeepsRemainder(t *testing.T) {
	tests := []struct {
		name                  string
		frame                 int
		acc, delta, threshold float64
		wantFrame             int
		wantAcc               float64
	}{
		{"forward wrap", 6, 0, 50, 50, 1, 0},
		{"backward wrap", 1, 0, -50, 50, 6, 0},
		{"below threshold", 3, 0, 49, 50, 3, 49},
		{"several steps", 1, 0, 130, 50, 3, 30},
		{"signed remainder", 1, 20, -75, 50, 6, -5},
		{"accumulates", 2, 30, 30, 50, 3, 10},
		{"full turn", 4, 0, 300, 50, 4, 0},
		{"zero threshold", 3, 0, 10, 0, 3, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, acc := Step(tc.frame, tc.acc, tc.delta, tc.threshold, 6)
			if frame != tc.wantFrame || acc != tc.wantAcc {
				t.Fatalf("Step() = (%d, %v), want (%d, %v)", frame, acc, tc.wantFrame, tc.wantAcc)
			}
		})
	}
}

func TestViewerReducer(t *testing.T) {
	v := NewViewer(6, 50, 5)
	if v.Frame != 1 || !v.Autoplay {
		t.Fatalf("unexpected initial viewer: %+v", v)
	}
	if v.Move(100).Frame != 1 {
		t.Fatalf("move without drag must be ignored")
	}

	v = v.Down()
	if v.Autoplay || !v.Dragging {
		t.Fatalf("down should pause autoplay: %+v", v)
	}
	if v.Advance().Frame != 1 {
		t.Fatalf("autoplay tick must not advance while paused")
	}
	v = v.Move(-60)
	if v.Frame != 6 || v.Accumulator != -10 {
		t.Fatalf("unexpected drag result: %+v", v)
	}

	v = v.Up()
	if v.Dragging || v.Accumulator != 0 || v.Countdown != 5 || v.Autoplay {
		t.Fatalf("unexpected release: %+v", v)
	}
	for i := 0; i < 4; i++ {
		v = v.Tick()
	}
	if v.Autoplay || v.Countdown != 1 {
		t.Fatalf("autoplay resumed early: %+v", v)
	}
	v = v.Tick()
	if !v.Autoplay || v.Countdown != 0 {
		t.Fatalf("autoplay should resume: %+v", v)
	}
	if v.Advance().Frame != 1 {
		t.Fatalf("expected wrap from 6 to 1")
	}

	paused := v.Down().Up().Toggle()
	if paused.Countdown != 0 || !paused.Autoplay {
		t.Fatalf("toggle should cancel countdown and flip autoplay: %+v", paused)
	}
	dragging := NewViewer(6, 50, 5).Down().Toggle()
	if !dragging.Autoplay || !dragging.Dragging {
		t.Fatalf("toggle during drag should enable autoplay: %+v", dragging)
	}
	if got := dragging.Advance(); got.Frame != 2 || !got.Dragging {
		t.Fatalf("autoplay should advance during a drag: %+v", got)
	}
	if FramePath(3) != "images/modelturning/s3.png" {
		t.Fatalf("unexpected frame path %q", FramePath(3))
	}
}

func TestViewerRuntime(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newManualClock()
	rt := NewViewerRuntime(NewViewer(6, 50, 5), 800*time.Millisecond, time.Second, WithViewerClock(clock))

	clock.tick(t, 800*time.Millisecond)
	eventually(t, func() bool { return rt.State().Frame == 2 }, "autoplay advance")

	rt.Down()
	if clock.ticker(800*time.Millisecond) != nil {
		t.Fatalf("autoplay ticker should stop on drag")
	}
	if got := rt.Move(120); got.Frame != 4 || got.Accumulator != 20 {
		t.Fatalf("unexpected drag state: %+v", got)
	}

	rt.Up()
	for i := 0; i < 5; i++ {
		clock.tick(t, time.Second)
	}
	eventually(t, func() bool { return rt.State().Autoplay }, "countdown resume")
	eventually(t, func() bool { return clock.ticker(time.Second) == nil }, "countdown ticker stopped")

	clock.tick(t, 800*time.Millisecond)
	eventually(t, func() bool { return rt.State().Frame == 5 }, "autoplay after resume")

	rt.Down()
	rt.Up()
	rt.Toggle()
	if clock.ticker(time.Second) != nil {
		t.Fatalf("toggle should cancel the countdown")
	}

	rt.Down()
	rt.Toggle()
	if clock.ticker(800*time.Millisecond) == nil {
		t.Fatalf("autoplay ticker should run during a drag once toggled on")
	}
	before := rt.State().Frame
	clock.tick(t, 800*time.Millisecond)
	eventually(t, func() bool { return rt.State().Frame == before%6+1 }, "autoplay advance while dragging")
	if !rt.State().Dragging {
		t.Fatalf("autoplay tick must not end the drag")
	}

	rt.Close()
	rt.Close()
	if n := clock.activeCount(); n != 0 {
		t.Fatalf("expected no active timers after close, got %d", n)
	}
	if got := rt.Toggle(); got.Autoplay != rt.State().Autoplay {
		t.Fatalf("closed runtime must ignore input")
	}
}

func commitAll(t *testing.T, g MixingGame, rect HitRect) MixingGame {
	t.Helper()
	for _, ing := range Ingredients {
		var err error
		if g, err = g.DragStart(ing); err != nil {
			t.Fatalf("drag %s: %v", ing, err)
		}
		if g, err = g.Drop(ing, Point{X: 50, Y: 50}, rect); err != nil {
			t.Fatalf("drop %s: %v", ing, err)
		}
	}
	return g
}

var receptacle = HitRect{Left: 0, Top: 0, Right: 100, Bottom: 100}

func TestMixingIngredients(t *testing.T) {
	g := NewMixingGame(1, 100, 1500*time.Millisecond)
	if g.Phase() != PhaseDrag {
		t.Fatalf("expected drag phase")
	}

	dragged, err := g.DragStart(Pits)
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	if g.States[Pits] != Available {
		t.Fatalf("reducer mutated its receiver")
	}
	missed, err := dragged.Drop(Pits, Point{X: 101, Y: 50}, receptacle)
	if err != nil || missed.States[Pits] != Available {
		t.Fatalf("missed drop should return to tray: %v %v", missed.States[Pits], err)
	}
	if _, err := missed.Drop(Pits, Point{}, receptacle); !errors.Is(err, ErrNotDragging) {
		t.Fatalf("expected ErrNotDragging, got %v", err)
	}

	edge, _ := dragged.Drop(Pits, Point{X: 100, Y: 0}, receptacle)
	if edge.States[Pits] != Committed {
		t.Fatalf("edge drop should commit")
	}
	if _, err := edge.DragStart(Pits); !errors.Is(err, ErrIngredientCommitted) {
		t.Fatalf("expected ErrIngredientCommitted, got %v", err)
	}
	if _, err := edge.DragStart("salt"); !errors.Is(err, ErrUnknownIngredient) {
		t.Fatalf("expected ErrUnknownIngredient, got %v", err)
	}
}

func TestMixingProgressMonotonicAndCompletesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := NewMixingGame(1, 100, 1500*time.Millisecond)

	if g.Interact(true).Tick(now).Progress != 0 {
		t.Fatalf("progress must not advance before all ingredients are added")
	}
	g = commitAll(t, g, receptacle)
	if g.Tick(now).Progress != 0 {
		t.Fatalf("progress must not advance without interaction")
	}

	g = g.Interact(true)
	prev := 0
	for i := 0; i < 150; i++ {
		g = g.Tick(now)
		if g.Progress < prev || g.Progress > 100 {
			t.Fatalf("progress went from %d to %d", prev, g.Progress)
		}
		prev = g.Progress
	}
	if g.Progress != 100 || !g.Scheduled || g.Phase() != PhaseMixed {
		t.Fatalf("unexpected final state: %+v", g)
	}
	if want := now.Add(1500 * time.Millisecond); !g.CompleteAt.Equal(want) {
		t.Fatalf("completion scheduled at %v, want %v", g.CompleteAt, want)
	}

	if _, fired := g.Finish(now); fired {
		t.Fatalf("completion fired before settle delay")
	}
	fires := 0
	for i := 0; i < 3; i++ {
		var fired bool
		g, fired = g.Finish(now.Add(2 * time.Second))
		if fired {
			fires++
		}
	}
	if fires != 1 {
		t.Fatalf("completion fired %d times", fires)
	}
}

func TestLiquidColorBands(t *testing.T) {
	cases := map[int]string{0: ColorBrown, 29: ColorBrown, 30: ColorOliveGreen, 59: ColorOliveGreen, 60: ColorDarkOlive, 100: ColorDarkOlive}
	for pct, want := range cases {
		if got := LiquidColor(pct); got != want {
			t.Fatalf("LiquidColor(%d) = %s, want %s", pct, got, want)
		}
	}
	g := NewMixingGame(10, 200, 0)
	g.Progress = 70
	if g.Percent() != 35 || g.LiquidColor() != ColorOliveGreen {
		t.Fatalf("unexpected percent %d colour %s", g.Percent(), g.LiquidColor())
	}
}

func TestInstructionsAndDots(t *testing.T) {
	g := NewMixingGame(1, 100, 0)
	if h, _ := g.Instructions(); h != "DRAG INGREDIENTS INTO THE RECEPTACLE" {
		t.Fatalf("unexpected heading %q", h)
	}
	g = commitAll(t, g, receptacle)
	if _, hint := g.Instructions(); hint != "Move your mouse/finger over the liquid to mix" {
		t.Fatalf("unexpected hint %q", hint)
	}

	dots := Dots(Algae, DefaultDotCount, 1)
	if len(dots) != 800 || dots[0].Color != ColorAlgae {
		t.Fatalf("unexpected dots: %d", len(dots))
	}
	for _, d := range dots {
		if d.X < 0 || d.X >= 100 || d.Size < 3 || d.Size >= 9 {
			t.Fatalf("dot out of range: %+v", d)
		}
	}
	again := Dots(Algae, DefaultDotCount, 1)
	if again[10] != dots[10] {
		t.Fatalf("dots not reproducible")
	}
	if Dots(Water, 10, 1)[0].X == dots[0].X {
		t.Fatalf("ingredients should scatter differently")
	}
	if Dots("salt", 10, 1) != nil {
		t.Fatalf("unknown ingredient should have no dots")
	}
}

func TestMixingRuntimeCompletesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newManualClock()
	var completions atomic.Int32
	rt := NewMixingRuntime(NewMixingGame(1, 100, 1500*time.Millisecond), 50*time.Millisecond,
		WithMixingClock(clock),
		WithCompletion(func() { completions.Add(1) }),
	)
	defer rt.Close()

	for _, ing := range Ingredients {
		if _, err := rt.DragStart(ing); err != nil {
			t.Fatalf("drag %s: %v", ing, err)
		}
		if _, err := rt.Drop(ing, Point{X: 10, Y: 10}, receptacle); err != nil {
			t.Fatalf("drop %s: %v", ing, err)
		}
	}
	if clock.ticker(50*time.Millisecond) != nil {
		t.Fatalf("ticker should wait for interaction")
	}

	rt.Interact(true)
	for i := 0; i < 100; i++ {
		clock.tick(t, 50*time.Millisecond)
	}
	eventually(t, func() bool { return rt.State().Progress == 100 }, "progress reaches target")
	eventually(t, func() bool { return clock.timer() != nil }, "settle timer armed")
	if clock.ticker(50*time.Millisecond) != nil {
		t.Fatalf("ticker should stop at target")
	}
	if d := clock.timer().d; d != 1500*time.Millisecond {
		t.Fatalf("settle timer %v, want 1.5s", d)
	}

	timer := clock.timer()
	select {
	case timer.ch <- clock.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("runtime did not receive settle tick")
	}
	eventually(t, func() bool { return completions.Load() == 1 }, "completion")
	eventually(t, func() bool { return rt.State().Completed }, "completed state")

	rt.Interact(false)
	rt.Interact(true)
	if completions.Load() != 1 || clock.activeCount() != 0 {
		t.Fatalf("completion must fire once and leave no timers: %d completions, %d timers", completions.Load(), clock.activeCount())
	}
}

func TestMixingRuntimeCloseStopsPendingTimers(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newManualClock()
	var completions atomic.Int32
	rt := NewMixingRuntime(NewMixingGame(50, 100, time.Second), 50*time.Millisecond,
		WithMixingClock(clock),
		WithCompletion(func() { completions.Add(1) }),
	)
	for _, ing := range Ingredients {
		rt.DragStart(ing)
		rt.Drop(ing, Point{}, receptacle)
	}
	rt.Interact(true)
	clock.tick(t, 50*time.Millisecond)
	clock.tick(t, 50*time.Millisecond)
	eventually(t, func() bool { return clock.timer() != nil }, "settle timer armed")

	rt.Close()
	if clock.activeCount() != 0 {
		t.Fatalf("close left timers running")
	}
	if completions.Load() != 0 {
		t.Fatalf("completion fired after close")
	}
}
