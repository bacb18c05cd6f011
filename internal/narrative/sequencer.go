package narrative

import "sync"

// Observation is the sequencer state after one scroll sample.
type Observation struct {
	Progress    float64 `json:"progress"`
	Stage       Stage   `json:"stage"`
	Segment     int     `json:"segment"`
	Holding     bool    `json:"holding"`
	Revealed    bool    `json:"revealed"`
	OverlayOpen bool    `json:"overlayOpen"`
	Completed   bool    `json:"completed"`
	Measured    bool    `json:"measured"`
}

// Sequencer turns scroll samples into stage values and reveals the mixing
// overlay when the reader first scrolls into the hold band.
type Sequencer struct {
	mu       sync.Mutex
	schedule Schedule

	progress  float64
	stage     Stage
	segment   int
	sampled   bool
	measured  bool
	holding   bool
	overlay   bool
	completed bool
	reveals   int
}

// NewSequencer starts at stage 0 with the overlay closed.
func NewSequencer(schedule Schedule) *Sequencer {
	if len(schedule.Segments) == 0 {
		schedule = DefaultSchedule()
	}
	return &Sequencer{schedule: schedule, segment: -1}
}

// Observe records a sample from a measured layout.
func (s *Sequencer) Observe(p float64) Observation {
	return s.ObserveLayout(p, true)
}

// ObserveLayout records a scroll sample. Until the layout has been measured
// the stage stays at its initial value and nothing is revealed.
func (s *Sequencer) ObserveLayout(p float64, measured bool) Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !measured {
		return s.observationLocked(false)
	}
	s.measured = true

	p = clampProgress(p)
	value, hold := s.schedule.Stage(p)
	wasHolding := s.holding
	s.progress = p
	s.segment = s.schedule.Segment(p)
	s.holding = hold

	if hold {
		if s.sampled && s.stage > value {
			value = s.stage
		}
	}
	s.stage = value
	s.sampled = true

	revealed := false
	if hold && !wasHolding && !s.overlay && !s.completed {
		s.overlay = true
		s.reveals++
		revealed = true
	}
	return s.observationLocked(revealed)
}

// Complete marks the mixing game finished and closes the overlay. The overlay
// is never revealed again.
func (s *Sequencer) Complete() Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.overlay = false
	return s.observationLocked(false)
}

// State returns the latest observation without sampling.
func (s *Sequencer) State() Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observationLocked(false)
}

// Reveals counts how many times the overlay has been revealed.
func (s *Sequencer) Reveals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reveals
}

func (s *Sequencer) observationLocked(revealed bool) Observation {
	return Observation{
		Progress:    s.progress,
		Stage:       s.stage,
		Segment:     s.segment,
		Holding:     s.holding,
		Revealed:    revealed,
		OverlayOpen: s.overlay,
		Completed:   s.completed,
		Measured:    s.measured,
	}
}
