// Package interactive holds the reducers and timer-driven runtimes behind the
// 360° model viewer and the drag-to-mix game.
package interactive

import "time"

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Timer delivers a single tick unless stopped first.
type Timer interface {
	Chan() <-chan time.Time
	Stop() bool
}

// Clock creates the tickers and timers a runtime owns. Tests substitute a
// manual clock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// SystemClock is backed by the time package.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) Chan() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()                  { s.t.Stop() }

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Chan() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool             { return s.t.Stop() }

func tickerChan(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
