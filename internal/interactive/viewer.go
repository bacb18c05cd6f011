package interactive

import (
	"fmt"
	"math"
)

// ViewerFramePath is the asset path pattern of the turntable frames.
const ViewerFramePath = "images/modelturning/s%d.png"

// FramePath returns the asset path of frame n.
func FramePath(n int) string {
	return fmt.Sprintf(ViewerFramePath, n)
}

// Step applies a horizontal drag delta to the accumulator and advances the
// frame by one for every full threshold crossed, wrapping within 1..n. The
// signed remainder is returned as the new accumulator.
func Step(frame int, accumulator, delta, threshold float64, n int) (int, float64) {
	if n < 1 || threshold <= 0 {
		return frame, accumulator
	}
	acc := accumulator + delta
	steps := math.Trunc(acc / threshold)
	remainder := acc - steps*threshold
	return wrapFrame(frame+int(steps), n), remainder
}

func wrapFrame(frame, n int) int {
	return ((frame-1)%n+n)%n + 1
}

// Viewer is the state of the drag/autoplay frame cycler. Methods return the
// next state and never mutate the receiver.
type Viewer struct {
	Frame          int     `json:"frame"`
	Frames         int     `json:"frames"`
	Sensitivity    float64 `json:"sensitivity"`
	Accumulator    float64 `json:"accumulator"`
	Dragging       bool    `json:"dragging"`
	Autoplay       bool    `json:"autoplay"`
	Countdown      int     `json:"countdown"`
	CountdownTicks int     `json:"-"`
}

// NewViewer starts on frame 1 with autoplay on.
func NewViewer(frames int, sensitivity float64, countdownTicks int) Viewer {
	if frames < 1 {
		frames = 1
	}
	return Viewer{
		Frame:          1,
		Frames:         frames,
		Sensitivity:    sensitivity,
		Autoplay:       true,
		CountdownTicks: countdownTicks,
	}
}

// Down starts a drag, pausing autoplay and any pending resume.
func (v Viewer) Down() Viewer {
	v.Dragging = true
	v.Autoplay = false
	v.Countdown = 0
	v.Accumulator = 0
	return v
}

// Move feeds a horizontal pointer delta while dragging.
func (v Viewer) Move(dx float64) Viewer {
	if !v.Dragging {
		return v
	}
	v.Frame, v.Accumulator = Step(v.Frame, v.Accumulator, dx, v.Sensitivity, v.Frames)
	return v
}

// Up ends a drag and starts the countdown to resume autoplay.
func (v Viewer) Up() Viewer {
	if !v.Dragging {
		return v
	}
	v.Dragging = false
	v.Accumulator = 0
	v.Countdown = v.CountdownTicks
	if v.Countdown == 0 {
		v.Autoplay = true
	}
	return v
}

// Toggle cancels a pending resume and flips autoplay.
func (v Viewer) Toggle() Viewer {
	v.Countdown = 0
	v.Autoplay = !v.Autoplay
	return v
}

// Advance is one autoplay tick. It applies whether or not a drag is in
// progress.
func (v Viewer) Advance() Viewer {
	if !v.Autoplay {
		return v
	}
	v.Frame = wrapFrame(v.Frame+1, v.Frames)
	return v
}

// Tick is one countdown tick. Autoplay resumes when it reaches zero.
func (v Viewer) Tick() Viewer {
	if v.Countdown <= 0 {
		return v
	}
	v.Countdown--
	if v.Countdown == 0 {
		v.Autoplay = true
	}
	return v
}

func (v Viewer) wantsAutoplay() bool {
	return v.Autoplay
}

func (v Viewer) wantsCountdown() bool {
	return v.Countdown > 0 && !v.Dragging
}
