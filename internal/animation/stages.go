package animation

import "math"

// Scene colours.
const (
	ColorGrinding    = "#8B4513"
	ColorLiquid      = "#2E8B57"
	ColorBiomaterial = "#F5E6D3"
)

// MeshState is the renderable state of a single mesh.
type MeshState struct {
	Visible    bool    `json:"visible"`
	Opacity    float64 `json:"opacity"`
	DepthWrite bool    `json:"depthWrite"`
	Scale      Vec3    `json:"scale"`
	Rotation   Vec3    `json:"rotation"`
	Position   Vec3    `json:"position"`
}

// OliveSnapshot holds the olive and its pit while the olive is peeled away.
type OliveSnapshot struct {
	Transition float64   `json:"transition"`
	PitBreak   float64   `json:"pitBreak"`
	Olive      MeshState `json:"olive"`
	Pit        MeshState `json:"pit"`
}

// OliveStage fades the olive out between stage 1 and 1.4 and breaks the pit
// between 1.8 and 2.2.
func OliveStage(stage, t float64) OliveSnapshot {
	oT := Ramp(stage, 1, 0.4)
	pB := Ramp(stage, 1.8, 0.4)

	snap := OliveSnapshot{
		Transition: oT,
		PitBreak:   pB,
		Olive: MeshState{
			Visible:    oT < 0.99,
			Opacity:    1 - oT,
			DepthWrite: oT < 0.5,
			Scale:      Uniform(1 - 0.3*oT),
		},
		Pit: MeshState{
			Visible:    true,
			Opacity:    math.Max(0, 1-1.5*pB),
			DepthWrite: true,
			Scale:      Uniform((0.8 + 0.2*oT) * (1 + 0.3*pB)),
		},
	}
	if pB > 0 {
		snap.Pit.Rotation = Vec3{
			X: pB * math.Sin(2*t) * 0.3,
			Y: pB * t * 0.5,
			Z: pB * math.Cos(1.5*t) * 0.2,
		}
	}
	return snap
}

// SeaweedSnapshot is the seaweed rising in and dissolving into liquid.
type SeaweedSnapshot struct {
	Entrance float64   `json:"entrance"`
	Dissolve float64   `json:"dissolve"`
	Mesh     MeshState `json:"mesh"`
}

// Seaweed rises in from below between stage 2.2 and 2.5 and dissolves
// between 2.7 and 3.0.
func Seaweed(stage, t float64) SeaweedSnapshot {
	entrance := Ramp(stage, 2.2, 0.3)
	ease := Smoothstep(entrance)
	d := Ramp(stage, 2.7, 0.3)

	y := -3 + 2.5*ease
	if entrance >= 1 && d < 0.5 {
		y += math.Sin(0.5*t) * 0.1
	}

	var rot Vec3
	if d > 0 {
		rot = Vec3{
			X: math.Sin(5*t) * 0.3 * d,
			Y: math.Cos(4*t) * 0.4 * d,
			Z: math.Sin(6*t) * 0.2 * d,
		}
	} else {
		rot.Y = math.Sin(0.3*t) * 0.2
	}

	return SeaweedSnapshot{
		Entrance: entrance,
		Dissolve: d,
		Mesh: MeshState{
			Visible:    true,
			Opacity:    math.Max(0, ease*(1-1.2*d)),
			DepthWrite: true,
			Scale:      Uniform(1 - 0.7*d),
			Rotation:   rot,
			Position:   Vec3{Y: y},
		},
	}
}

// Strip is one flat biomaterial sheet.
type Strip struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Position  Vec3    `json:"position"`
	Rotation  Vec3    `json:"rotation"`
	Color     string  `json:"color"`
	Roughness float64 `json:"roughness"`
	Metalness float64 `json:"metalness"`
}

const stripCount = 8

var strips = func() []Strip {
	out := make([]Strip, stripCount)
	for i := range out {
		out[i] = Strip{
			Width:     0.3,
			Height:    1.5,
			Position:  Vec3{X: float64(i-stripCount/2) * 0.4},
			Rotation:  Vec3{X: math.Pi / 2},
			Color:     ColorBiomaterial,
			Roughness: 0.8,
			Metalness: 0.1,
		}
	}
	return out
}()

// Biomaterial returns the final strips. The slice is shared and must not be
// modified.
func Biomaterial() []Strip {
	return strips
}
