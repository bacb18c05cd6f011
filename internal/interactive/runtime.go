package interactive

import (
	"sync"
	"time"
)

// ViewerRuntime drives a Viewer with an autoplay ticker and a resume
// countdown. It is safe for concurrent use; Close stops every timer.
type ViewerRuntime struct {
	mu    sync.Mutex
	state Viewer
	clock Clock

	autoplayEvery  time.Duration
	countdownEvery time.Duration
	autoplay       Ticker
	countdown      Ticker

	closed bool
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// ViewerOption configures a ViewerRuntime.
type ViewerOption func(*ViewerRuntime)

// WithViewerClock overrides the clock.
func WithViewerClock(clock Clock) ViewerOption {
	return func(r *ViewerRuntime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewViewerRuntime starts the runtime goroutine.
func NewViewerRuntime(initial Viewer, autoplayEvery, countdownEvery time.Duration, opts ...ViewerOption) *ViewerRuntime {
	r := &ViewerRuntime{
		state:          initial,
		clock:          SystemClock(),
		autoplayEvery:  autoplayEvery,
		countdownEvery: countdownEvery,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mu.Lock()
	r.syncLocked()
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	return r
}

// Down starts a drag.
func (r *ViewerRuntime) Down() Viewer { return r.apply(Viewer.Down) }

// Move feeds a drag delta.
func (r *ViewerRuntime) Move(dx float64) Viewer {
	return r.apply(func(v Viewer) Viewer { return v.Move(dx) })
}

// Up ends a drag.
func (r *ViewerRuntime) Up() Viewer { return r.apply(Viewer.Up) }

// Toggle flips autoplay.
func (r *ViewerRuntime) Toggle() Viewer { return r.apply(Viewer.Toggle) }

// State returns the current viewer state.
func (r *ViewerRuntime) State() Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close stops the tickers and waits for the runtime goroutine.
func (r *ViewerRuntime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stopTicker(&r.autoplay)
	stopTicker(&r.countdown)
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
}

func (r *ViewerRuntime) apply(fn func(Viewer) Viewer) Viewer {
	r.mu.Lock()
	if r.closed {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.state = fn(r.state)
	r.syncLocked()
	state := r.state
	r.mu.Unlock()

	poke(r.wake)
	return state
}

func (r *ViewerRuntime) syncLocked() {
	switch {
	case r.state.wantsAutoplay() && r.autoplay == nil:
		r.autoplay = r.clock.NewTicker(r.autoplayEvery)
	case !r.state.wantsAutoplay():
		stopTicker(&r.autoplay)
	}
	switch {
	case r.state.wantsCountdown() && r.countdown == nil:
		r.countdown = r.clock.NewTicker(r.countdownEvery)
	case !r.state.wantsCountdown():
		stopTicker(&r.countdown)
	}
}

func (r *ViewerRuntime) run() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		autoplay, countdown := tickerChan(r.autoplay), tickerChan(r.countdown)
		r.mu.Unlock()

		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-autoplay:
			r.apply(Viewer.Advance)
		case <-countdown:
			r.apply(Viewer.Tick)
		}
	}
}

// MixingRuntime drives a MixingGame with a progress ticker and a settle
// timer. onComplete runs exactly once, after the settle delay.
type MixingRuntime struct {
	mu    sync.Mutex
	game  MixingGame
	clock Clock

	tickEvery  time.Duration
	ticker     Ticker
	settle     Timer
	onComplete func()

	closed bool
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// MixingOption configures a MixingRuntime.
type MixingOption func(*MixingRuntime)

// WithMixingClock overrides the clock.
func WithMixingClock(clock Clock) MixingOption {
	return func(r *MixingRuntime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithCompletion registers the completion callback.
func WithCompletion(fn func()) MixingOption {
	return func(r *MixingRuntime) {
		r.onComplete = fn
	}
}

// NewMixingRuntime starts the runtime goroutine.
func NewMixingRuntime(game MixingGame, tickEvery time.Duration, opts ...MixingOption) *MixingRuntime {
	r := &MixingRuntime{
		game:      game,
		clock:     SystemClock(),
		tickEvery: tickEvery,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mu.Lock()
	r.syncLocked()
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	return r
}

// DragStart picks up an ingredient.
func (r *MixingRuntime) DragStart(ing Ingredient) (MixingGame, error) {
	return r.applyErr(func(g MixingGame) (MixingGame, error) { return g.DragStart(ing) })
}

// Drop releases an ingredient at p.
func (r *MixingRuntime) Drop(ing Ingredient, p Point, receptacle HitRect) (MixingGame, error) {
	return r.applyErr(func(g MixingGame) (MixingGame, error) { return g.Drop(ing, p, receptacle) })
}

// Interact starts or stops stirring.
func (r *MixingRuntime) Interact(on bool) MixingGame {
	g, _ := r.applyErr(func(g MixingGame) (MixingGame, error) { return g.Interact(on), nil })
	return g
}

// State returns the current game state.
func (r *MixingRuntime) State() MixingGame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.game
}

// Close stops the ticker and settle timer and waits for the runtime goroutine.
func (r *MixingRuntime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stopTicker(&r.ticker)
	stopTimer(&r.settle)
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
}

func (r *MixingRuntime) applyErr(fn func(MixingGame) (MixingGame, error)) (MixingGame, error) {
	r.mu.Lock()
	if r.closed {
		game := r.game
		r.mu.Unlock()
		return game, nil
	}
	next, err := fn(r.game)
	if err != nil {
		game := r.game
		r.mu.Unlock()
		return game, err
	}
	r.game = next
	r.syncLocked()
	game := r.game
	r.mu.Unlock()

	poke(r.wake)
	return game, nil
}

func (r *MixingRuntime) syncLocked() {
	if r.game.Mixing() {
		if r.ticker == nil {
			r.ticker = r.clock.NewTicker(r.tickEvery)
		}
	} else {
		stopTicker(&r.ticker)
	}

	pending := r.game.Scheduled && !r.game.Completed
	switch {
	case pending && r.settle == nil:
		r.settle = r.clock.NewTimer(max(0, r.game.CompleteAt.Sub(r.clock.Now())))
	case !pending:
		stopTimer(&r.settle)
	}
}

func (r *MixingRuntime) finish() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	next, fired := r.game.Finish(r.game.CompleteAt)
	r.game = next
	stopTimer(&r.settle)
	r.syncLocked()
	done := r.onComplete
	r.mu.Unlock()

	poke(r.wake)
	if fired && done != nil {
		done()
	}
}

func (r *MixingRuntime) run() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		tick, settle := tickerChan(r.ticker), timerChan(r.settle)
		r.mu.Unlock()

		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-tick:
			r.applyErr(func(g MixingGame) (MixingGame, error) { return g.Tick(r.clock.Now()), nil })
		case <-settle:
			r.finish()
		}
	}
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func stopTicker(t *Ticker) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
