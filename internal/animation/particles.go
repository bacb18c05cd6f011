package animation

import (
	"math"
	"math/rand/v2"
)

// Particle counts.
const (
	GrindingCount = 100
	LiquidCount   = 150
)

// ParticleSnapshot is the material and buffer state of a point cloud.
// Positions aliases the system's buffer and is only valid until the next Step.
type ParticleSnapshot struct {
	Visible   bool    `json:"visible"`
	Elapsed   float64 `json:"elapsed"`
	Size      float64 `json:"size"`
	Opacity   float64 `json:"opacity"`
	Color     string  `json:"color"`
	Positions []Vec3  `json:"positions,omitempty"`
}

// Particles is an incrementally advanced point cloud. It is not safe for
// concurrent use.
type Particles struct {
	positions  []Vec3
	velocities []Vec3

	bound  float64
	bounce float64
	swirl  float64

	baseSize   float64
	growSize   float64
	growPeriod float64

	fadeStart   float64
	fadeWidth   float64
	peakOpacity float64
	color       string

	started bool
	start   float64
}

// NewGrindingParticles seeds the cloud of ground pit fragments.
func NewGrindingParticles(seed uint64) *Particles {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := &Particles{
		positions:   make([]Vec3, GrindingCount),
		velocities:  make([]Vec3, GrindingCount),
		bound:       1,
		bounce:      -0.5,
		baseSize:    0.03,
		growSize:    0.05,
		growPeriod:  2,
		fadeStart:   2.0,
		fadeWidth:   0.2,
		peakOpacity: 0.8,
		color:       ColorGrinding,
	}
	for i := range p.positions {
		p.positions[i] = Vec3{
			X: (rng.Float64() - 0.5) * 0.5,
			Y: (rng.Float64() - 0.5) * 0.5,
			Z: (rng.Float64() - 0.5) * 0.5,
		}
		p.velocities[i] = Vec3{
			X: (rng.Float64() - 0.5) * 0.02,
			Y: (rng.Float64() - 0.5) * 0.02,
			Z: (rng.Float64() - 0.5) * 0.02,
		}
	}
	return p
}

// NewLiquidParticles seeds the swirling alginate droplets.
func NewLiquidParticles(seed uint64) *Particles {
	rng := rand.New(rand.NewPCG(seed, seed^0x94d049bb133111eb))
	p := &Particles{
		positions:   make([]Vec3, LiquidCount),
		velocities:  make([]Vec3, LiquidCount),
		bound:       1.5,
		bounce:      -0.3,
		swirl:       0.02,
		baseSize:    0.02,
		growSize:    0.04,
		growPeriod:  1.5,
		fadeStart:   2.9,
		fadeWidth:   0.1,
		peakOpacity: 0.7,
		color:       ColorLiquid,
	}
	for i := range p.positions {
		p.positions[i] = Vec3{
			X: (rng.Float64() - 0.5) * 0.3,
			Y: (rng.Float64()-0.5)*0.3 - 0.5,
			Z: (rng.Float64() - 0.5) * 0.3,
		}
		p.velocities[i] = Vec3{
			X: (rng.Float64() - 0.5) * 0.015,
			Y: rng.Float64()*0.01 - 0.005,
			Z: (rng.Float64() - 0.5) * 0.015,
		}
	}
	return p
}

// Len reports the particle count.
func (p *Particles) Len() int {
	return len(p.positions)
}

// Step advances the cloud by one frame at time t. A hidden cloud does not move
// and restarts its growth clock the next time it becomes visible.
func (p *Particles) Step(visible bool, stage, t float64) ParticleSnapshot {
	if !visible {
		p.started = false
		return ParticleSnapshot{Color: p.color}
	}
	if !p.started {
		p.started = true
		p.start = t
	}
	elapsed := t - p.start

	for i := range p.positions {
		pos := &p.positions[i]
		vel := p.velocities[i]
		pos.X += vel.X
		pos.Y += vel.Y
		pos.Z += vel.Z
		if p.swirl > 0 {
			angle := 0.5*t + 0.1*float64(i)
			pos.X += math.Cos(angle) * p.swirl
			pos.Z += math.Sin(angle) * p.swirl
		}
		pos.X = p.contain(pos.X)
		pos.Y = p.contain(pos.Y)
		pos.Z = p.contain(pos.Z)
	}

	return ParticleSnapshot{
		Visible:   true,
		Elapsed:   elapsed,
		Size:      p.baseSize + math.Min(1, elapsed/p.growPeriod)*p.growSize,
		Opacity:   p.peakOpacity * (1 - Ramp(stage, p.fadeStart, p.fadeWidth)),
		Color:     p.color,
		Positions: p.positions,
	}
}

func (p *Particles) contain(v float64) float64 {
	if math.Abs(v) > p.bound {
		return v * p.bounce
	}
	return v
}
