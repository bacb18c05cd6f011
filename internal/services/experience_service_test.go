package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/fillesume/storefront/internal/animation"
	"github.com/fillesume/storefront/internal/interactive"
	"github.com/fillesume/storefront/internal/narrative"
	"github.com/fillesume/storefront/internal/platform/config"
	"github.com/fillesume/storefront/internal/platform/jobs"
)

// The pubsub and grpc clients start the opencensus view worker on import.
var ignoreClientWorkers = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

type fakeTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.stopped.Store(true) }

type fakeTimer struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTimer) Chan() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool             { return !t.stopped.Swap(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(d time.Duration) interactive.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{d: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) NewTimer(time.Duration) interactive.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time)}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) activeTicker(d time.Duration) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if t := c.tickers[i]; t.d == d && !t.stopped.Load() {
			return t
		}
	}
	return nil
}

func (c *fakeClock) activeTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.timers) - 1; i >= 0; i-- {
		if t := c.timers[i]; !t.stopped.Load() {
			return t
		}
	}
	return nil
}

func send(t *testing.T, ch chan time.Time, at time.Time) {
	t.Helper()
	select {
	case ch <- at:
	case <-time.After(2 * time.Second):
		t.Fatalf("runtime did not receive tick")
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var testReceptacle = interactive.HitRect{Left: 0, Top: 0, Right: 100, Bottom: 100}

type experienceFixture struct {
	svc    ExperienceService
	clock  *fakeClock
	events *recordingPublisher
}

func newExperienceFixture(t *testing.T) experienceFixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	events := &recordingPublisher{}
	ids := 0
	svc, err := NewExperienceService(ExperienceServiceDeps{
		Viewer: config.ViewerConfig{
			Frames:           6,
			Sensitivity:      50,
			AutoplayInterval: 800 * time.Millisecond,
			CountdownTicks:   5,
			CountdownTick:    time.Second,
		},
		Mixing: config.MixingConfig{
			Step:        50,
			Tick:        50 * time.Millisecond,
			SettleDelay: 1500 * time.Millisecond,
			Target:      100,
		},
		IdleTTL:    10 * time.Minute,
		TimeSource: clock,
		Clock:      clock.Now,
		Events:     events,
		AssetURL: func(_ context.Context, path string) string {
			return "https://cdn.example/" + path
		},
		IDGen: func() string {
			ids++
			return "exp-" + string(rune('0'+ids))
		},
		Seed: func() uint64 { return 7 },
	})
	if err != nil {
		t.Fatalf("new experience service: %v", err)
	}
	t.Cleanup(svc.Close)
	return experienceFixture{svc: svc, clock: clock, events: events}
}

func TestExperienceServiceStart(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreClientWorkers)
	fx := newExperienceFixture(t)

	view, err := fx.svc.Start(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.ID == "" {
		t.Fatalf("expected session id")
	}
	if view.Viewer.Frame != 1 || !view.Viewer.Autoplay {
		t.Fatalf("unexpected viewer %#v", view.Viewer)
	}
	if view.Viewer.FrameURL != "https://cdn.example/images/modelturning/s1.png" {
		t.Fatalf("unexpected frame url %q", view.Viewer.FrameURL)
	}
	if view.Narrative.Stage != 0 || view.Narrative.OverlayOpen {
		t.Fatalf("unexpected narrative %#v", view.Narrative)
	}
	if len(view.Sections) != 4 {
		t.Fatalf("expected 4 sections, got %d", len(view.Sections))
	}
	if view.Mixing.Phase != interactive.PhaseDrag || view.Mixing.Percent != 0 {
		t.Fatalf("unexpected mixing %#v", view.Mixing)
	}
	fx.svc.Close()
}

func TestExperienceServiceScrollRevealsOnce(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()
	view, err := fx.svc.Start(ctx, "owner")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	reveals := 0
	for _, p := range []float64{0.1, 0.3, 0.5, 0.62, 0.64, 0.66, 0.8, 0.62} {
		res, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner", Progress: p, Measured: true, Time: 1})
		if err != nil {
			t.Fatalf("scroll %v: %v", p, err)
		}
		if res.Narrative.Revealed {
			reveals++
		}
		if res.Frame.Stage != res.Narrative.Stage {
			t.Fatalf("frame stage %v does not match narrative %v", res.Frame.Stage, res.Narrative.Stage)
		}
	}
	if reveals != 1 {
		t.Fatalf("expected exactly one reveal, got %d", reveals)
	}

	res, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner", Progress: 0.35, Measured: true, Time: 2})
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if !res.Frame.Visible[narrative.SceneGrinding] && !res.Frame.Visible[narrative.SceneSeaweed] {
		t.Fatalf("expected a mid-story scene to be visible at %v", res.Narrative.Stage)
	}

	if _, err := fx.svc.Scroll(ctx, ScrollCommand{ID: "missing", OwnerID: "owner", Progress: 0.5, Measured: true}); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("expected ErrExperienceNotFound, got %v", err)
	}
}

func TestExperienceServiceViewer(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()
	view, _ := fx.svc.Start(ctx, "owner")

	if _, err := fx.svc.Viewer(ctx, ViewerCommand{ID: view.ID, OwnerID: "owner", Action: ViewerDown}); err != nil {
		t.Fatalf("down: %v", err)
	}
	got, err := fx.svc.Viewer(ctx, ViewerCommand{ID: view.ID, OwnerID: "owner", Action: ViewerMove, DeltaX: 120})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got.Frame != 3 || got.Autoplay {
		t.Fatalf("expected frame 3 with autoplay paused, got %#v", got.Viewer)
	}
	if got.FrameURL != "https://cdn.example/images/modelturning/s3.png" {
		t.Fatalf("unexpected frame url %q", got.FrameURL)
	}

	got, err = fx.svc.Viewer(ctx, ViewerCommand{ID: view.ID, OwnerID: "owner", Action: ViewerMove, DeltaX: -170})
	if err != nil {
		t.Fatalf("move back: %v", err)
	}
	if got.Frame != 6 {
		t.Fatalf("expected wrap to frame 6, got %d", got.Frame)
	}

	state, err := fx.svc.ViewerState(ctx, "owner", view.ID)
	if err != nil || state.Frame != 6 {
		t.Fatalf("unexpected state %#v err %v", state, err)
	}

	if _, err := fx.svc.Viewer(ctx, ViewerCommand{ID: view.ID, OwnerID: "owner", Action: "spin"}); !errors.Is(err, ErrExperienceInvalidInput) {
		t.Fatalf("expected ErrExperienceInvalidInput, got %v", err)
	}
}

func TestExperienceServiceMixingCompletes(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreClientWorkers)
	fx := newExperienceFixture(t)
	ctx := context.Background()
	view, _ := fx.svc.Start(ctx, "owner-7")

	if _, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner-7", Progress: 0.62, Measured: true}); err != nil {
		t.Fatalf("scroll: %v", err)
	}

	if _, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner-7", Action: MixingDrop, Ingredient: interactive.Pits, Receptacle: testReceptacle}); !errors.Is(err, ErrExperienceInvalidInput) {
		t.Fatalf("drop without drag should be rejected, got %v", err)
	}
	for _, ing := range interactive.Ingredients {
		if _, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner-7", Action: MixingDragStart, Ingredient: ing}); err != nil {
			t.Fatalf("drag %s: %v", ing, err)
		}
		if _, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner-7", Action: MixingDrop, Ingredient: ing, Point: interactive.Point{X: 50, Y: 50}, Receptacle: testReceptacle}); err != nil {
			t.Fatalf("drop %s: %v", ing, err)
		}
	}
	mixing, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner-7", Action: MixingInteract})
	if err != nil {
		t.Fatalf("interact: %v", err)
	}
	if mixing.Phase != interactive.PhaseMix {
		t.Fatalf("expected mix phase, got %s", mixing.Phase)
	}

	for i := 0; i < 2; i++ {
		var tk *fakeTicker
		waitFor(t, func() bool { tk = fx.clock.activeTicker(50 * time.Millisecond); return tk != nil }, "mixing ticker")
		send(t, tk.ch, fx.clock.Now())
	}
	var timer *fakeTimer
	waitFor(t, func() bool { timer = fx.clock.activeTimer(); return timer != nil }, "settle timer")
	fx.clock.advance(1500 * time.Millisecond)
	send(t, timer.ch, fx.clock.Now())

	waitFor(t, func() bool { return len(fx.events.published()) == 1 }, "mixing.completed event")
	ev := fx.events.published()[0]
	if ev.Type != jobs.EventMixingCompleted || ev.SessionID != "owner-7" || ev.Payload["experienceId"] != view.ID {
		t.Fatalf("unexpected event %#v", ev)
	}

	res, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner-7", Progress: 0.62})
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if !res.Narrative.Completed || res.Narrative.OverlayOpen {
		t.Fatalf("expected completed narrative with closed overlay, got %#v", res.Narrative)
	}

	state, err := fx.svc.MixingState(ctx, "owner-7", view.ID, true)
	if err != nil {
		t.Fatalf("mixing state: %v", err)
	}
	if !state.Game.Completed || state.Percent != 100 {
		t.Fatalf("unexpected final game %#v", state.Game)
	}
	if len(state.Dots[interactive.Algae]) != interactive.DefaultDotCount {
		t.Fatalf("expected dot textures, got %d", len(state.Dots[interactive.Algae]))
	}
	fx.svc.Close()
}

func TestExperienceServiceReapAndEnd(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreClientWorkers)
	fx := newExperienceFixture(t)
	ctx := context.Background()

	stale, _ := fx.svc.Start(ctx, "a")
	fx.clock.advance(6 * time.Minute)
	fresh, _ := fx.svc.Start(ctx, "b")
	fx.clock.advance(5 * time.Minute)

	if n := fx.svc.Reap(fx.clock.Now()); n != 1 {
		t.Fatalf("expected one reaped session, got %d", n)
	}
	if _, err := fx.svc.ViewerState(ctx, "a", stale.ID); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	if _, err := fx.svc.ViewerState(ctx, "b", fresh.ID); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}

	if err := fx.svc.End(ctx, "b", fresh.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := fx.svc.End(ctx, "b", fresh.ID); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("second end should report not found, got %v", err)
	}

	fx.svc.Close()
	if _, err := fx.svc.Start(ctx, "c"); !errors.Is(err, ErrExperienceClosed) {
		t.Fatalf("expected ErrExperienceClosed, got %v", err)
	}
}

func TestExperienceServiceScopesSessionsToOwner(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()
	view, _ := fx.svc.Start(ctx, "owner-1")

	if _, err := fx.svc.ViewerState(ctx, "owner-2", view.ID); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("viewer state for another owner: expected ErrExperienceNotFound, got %v", err)
	}
	if _, err := fx.svc.Viewer(ctx, ViewerCommand{ID: view.ID, OwnerID: "owner-2", Action: ViewerToggle}); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("viewer for another owner: expected ErrExperienceNotFound, got %v", err)
	}
	if _, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, Progress: 0.62, Measured: true}); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("scroll without owner: expected ErrExperienceNotFound, got %v", err)
	}
	if _, err := fx.svc.MixingState(ctx, "owner-2", view.ID, false); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("mixing state for another owner: expected ErrExperienceNotFound, got %v", err)
	}
	if _, err := fx.svc.Hero(ctx, HeroCommand{SessionID: view.ID, OwnerID: "owner-2"}); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("hero for another owner: expected ErrExperienceNotFound, got %v", err)
	}
	if err := fx.svc.End(ctx, "owner-2", view.ID); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("end for another owner: expected ErrExperienceNotFound, got %v", err)
	}

	if _, err := fx.svc.ViewerState(ctx, "owner-1", view.ID); err != nil {
		t.Fatalf("session must survive foreign requests: %v", err)
	}
	if err := fx.svc.End(ctx, "owner-1", view.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
}

func TestExperienceServiceMixingLockedUntilReveal(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()
	view, _ := fx.svc.Start(ctx, "owner")

	for _, action := range []string{MixingDragStart, MixingDrop, MixingInteract, MixingStop} {
		_, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner", Action: action, Ingredient: interactive.Pits, Receptacle: testReceptacle})
		if !errors.Is(err, ErrExperienceLocked) {
			t.Fatalf("%s before reveal: expected ErrExperienceLocked, got %v", action, err)
		}
	}
	if _, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner", Action: "shake"}); !errors.Is(err, ErrExperienceInvalidInput) {
		t.Fatalf("unknown action: expected ErrExperienceInvalidInput, got %v", err)
	}

	// Scrolling short of the hold band does not unlock the game.
	if _, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner", Progress: 0.3, Measured: true}); err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if _, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner", Action: MixingDragStart, Ingredient: interactive.Pits}); !errors.Is(err, ErrExperienceLocked) {
		t.Fatalf("drag before reveal: expected ErrExperienceLocked, got %v", err)
	}

	res, err := fx.svc.Scroll(ctx, ScrollCommand{ID: view.ID, OwnerID: "owner", Progress: 0.62, Measured: true})
	if err != nil || !res.Narrative.Revealed {
		t.Fatalf("expected reveal, got %#v err %v", res.Narrative, err)
	}
	game, err := fx.svc.Mixing(ctx, MixingCommand{ID: view.ID, OwnerID: "owner", Action: MixingDragStart, Ingredient: interactive.Pits})
	if err != nil {
		t.Fatalf("drag after reveal: %v", err)
	}
	if game.Phase != interactive.PhaseDrag {
		t.Fatalf("unexpected phase %s", game.Phase)
	}
}

func TestExperienceServiceHero(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()

	cmd := HeroCommand{T: 1, Pointer: animation.Pointer{X: 1, Y: 0.5}, Width: 1400}
	first, err := fx.svc.Hero(ctx, cmd)
	if err != nil {
		t.Fatalf("hero: %v", err)
	}
	again, _ := fx.svc.Hero(ctx, cmd)
	if first.Logo.Transform.Rotation != again.Logo.Transform.Rotation {
		t.Fatalf("stateless hero frames must not accumulate")
	}

	view, _ := fx.svc.Start(ctx, "owner")
	cmd.SessionID, cmd.OwnerID = view.ID, "owner"
	one, _ := fx.svc.Hero(ctx, cmd)
	two, _ := fx.svc.Hero(ctx, cmd)
	if two.Logo.Transform.Rotation.Y <= one.Logo.Transform.Rotation.Y {
		t.Fatalf("session hero should keep easing toward the pointer: %v then %v", one.Logo.Transform.Rotation.Y, two.Logo.Transform.Rotation.Y)
	}
	if two.Globe.Rotation.Y <= one.Globe.Rotation.Y {
		t.Fatalf("globe should keep spinning")
	}
	if _, err := fx.svc.Hero(ctx, HeroCommand{SessionID: "missing", OwnerID: "owner"}); !errors.Is(err, ErrExperienceNotFound) {
		t.Fatalf("expected ErrExperienceNotFound, got %v", err)
	}
}

func TestExperienceServiceShowcase(t *testing.T) {
	fx := newExperienceFixture(t)
	ctx := context.Background()

	olive, err := fx.svc.Showcase(ctx, ShowcaseCommand{Model: " Olive ", Width: 390})
	if err != nil {
		t.Fatalf("showcase: %v", err)
	}
	if olive.Model != ShowcaseOlive || olive.Size != (animation.Size{Height: 250, Scale: 0.8}) {
		t.Fatalf("unexpected olive frame %+v", olive)
	}
	if olive.Camera.Position.Z != 4 || olive.WoolBall != nil {
		t.Fatalf("unexpected olive camera %+v", olive.Camera)
	}

	pinned, _ := fx.svc.Showcase(ctx, ShowcaseCommand{Model: ShowcaseSeaweed, Width: 1440, FixedHeight: 320})
	if pinned.Size != (animation.Size{Height: 320, Scale: 1}) || pinned.Transform.Scale != animation.Uniform(1) {
		t.Fatalf("fixed height should pin size and scale, got %+v", pinned)
	}

	fiber, _ := fx.svc.Showcase(ctx, ShowcaseCommand{Model: ShowcaseFiber, Width: 1440, Geometry: true, Seed: 3})
	if fiber.Camera.Position.Z != 2.5 || fiber.WoolBall == nil {
		t.Fatalf("unexpected fiber frame %+v", fiber.Camera)
	}
	if len(fiber.WoolBall.Curls) != animation.WoolCurls || len(fiber.WoolBall.Fluff) != animation.WoolFluff {
		t.Fatalf("unexpected wool ball size %d/%d", len(fiber.WoolBall.Curls), len(fiber.WoolBall.Fluff))
	}

	for _, cmd := range []ShowcaseCommand{{Model: "globe"}, {Model: ShowcaseOlive, Width: -1}} {
		if _, err := fx.svc.Showcase(ctx, cmd); !errors.Is(err, ErrExperienceInvalidInput) {
			t.Fatalf("%+v: expected ErrExperienceInvalidInput, got %v", cmd, err)
		}
	}
}
