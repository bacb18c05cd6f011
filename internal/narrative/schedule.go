// Package narrative maps scroll progress on the biotextil page to a stage
// value and the scenes visible at that stage.
package narrative

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Stage is the scalar driving every scene on the page. The initial stage is 0.
type Stage float64

var (
	// ErrInvalidSchedule reports a schedule whose segments do not tile [0,1].
	ErrInvalidSchedule = errors.New("narrative: invalid schedule")
)

// Segment maps progress in [From, To) to Base + Rate·(p − From). A hold
// segment keeps the stage where the previous segment ended and reveals the
// mixing overlay.
type Segment struct {
	From float64 `yaml:"from" json:"from"`
	To   float64 `yaml:"to" json:"to"`
	Base float64 `yaml:"base" json:"base"`
	Rate float64 `yaml:"rate" json:"rate"`
	Hold bool    `yaml:"hold,omitempty" json:"hold,omitempty"`
}

func (s Segment) at(p float64) float64 {
	return s.Base + s.Rate*(p-s.From)
}

// Schedule is an ordered list of segments covering [0,1].
type Schedule struct {
	Segments []Segment `yaml:"segments" json:"segments"`
}

// DefaultSchedule is the reference scroll schedule.
func DefaultSchedule() Schedule {
	return Schedule{Segments: []Segment{
		{From: 0, To: 0.25, Base: 1, Rate: 4},
		{From: 0.25, To: 0.5, Base: 2, Rate: 4},
		{From: 0.5, To: 0.6, Base: 3, Rate: 4},
		{From: 0.6, To: 0.65, Hold: true},
		{From: 0.65, To: 0.85, Base: 4, Rate: 4},
		{From: 0.85, To: 1, Base: 5, Rate: 4},
	}}
}

// LoadSchedule reads a YAML schedule from path and validates it.
func LoadSchedule(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("narrative: read schedule: %w", err)
	}
	var sched Schedule
	if err := yaml.Unmarshal(raw, &sched); err != nil {
		return Schedule{}, fmt.Errorf("narrative: decode schedule: %w", err)
	}
	if err := sched.Validate(); err != nil {
		return Schedule{}, err
	}
	return sched, nil
}

// Validate checks that segments are contiguous from 0 to 1 and that a hold
// segment is never first.
func (s Schedule) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidSchedule)
	}
	next := 0.0
	for i, seg := range s.Segments {
		if seg.From != next {
			return fmt.Errorf("%w: segment %d starts at %v, want %v", ErrInvalidSchedule, i, seg.From, next)
		}
		if seg.To <= seg.From {
			return fmt.Errorf("%w: segment %d is empty", ErrInvalidSchedule, i)
		}
		if seg.Hold && i == 0 {
			return fmt.Errorf("%w: schedule cannot start with a hold", ErrInvalidSchedule)
		}
		next = seg.To
	}
	if next != 1 {
		return fmt.Errorf("%w: segments end at %v, want 1", ErrInvalidSchedule, next)
	}
	return nil
}

// Stage evaluates the schedule at progress p, clamped to [0,1]. Inside a hold
// segment it returns the value the preceding segment ends on and hold=true;
// callers with a previous sample decide whether to keep it.
func (s Schedule) Stage(p float64) (Stage, bool) {
	idx := s.segmentIndex(p)
	if idx < 0 {
		return 0, false
	}
	p = clampProgress(p)
	seg := s.Segments[idx]
	if seg.Hold {
		return s.holdValue(idx), true
	}
	return Stage(seg.at(p)), false
}

// Segment returns the index of the segment containing p.
func (s Schedule) Segment(p float64) int {
	return s.segmentIndex(p)
}

func (s Schedule) segmentIndex(p float64) int {
	if len(s.Segments) == 0 {
		return -1
	}
	p = clampProgress(p)
	for i, seg := range s.Segments {
		if p < seg.To {
			return i
		}
	}
	return len(s.Segments) - 1
}

func (s Schedule) holdValue(idx int) Stage {
	for i := idx - 1; i >= 0; i-- {
		prev := s.Segments[i]
		if !prev.Hold {
			return Stage(prev.at(prev.To))
		}
	}
	return 0
}

func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
