package animation

import (
	"fmt"
	"math"
)

// Hero and globe constants.
const (
	HeroColor       = "#AE3647"
	GlobeText       = "FROM EARTH TO EARTH • "
	GlobeTextRadius = 140

	tiltLerp      = 0.05
	squashLerp    = 0.15
	releaseLerp   = 0.08
	squashAmount  = 0.4
	globeSpin     = 0.005
	globeMaxTilt  = 0.3
	heroMaxTiltY  = 0.3
	heroMaxTiltX  = 0.2
	circlePadding = 30
)

// Pointer is a normalised position over the canvas, (0.5, 0.5) being the centre.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Centre is the resting pointer.
var Centre = Pointer{X: 0.5, Y: 0.5}

// HeroInput is one frame of pointer interaction over the landing logo.
type HeroInput struct {
	T        float64
	Pointer  Pointer
	Dragging bool
	Width    int
}

// Material describes a standard surface.
type Material struct {
	Color             string  `json:"color"`
	Emissive          string  `json:"emissive,omitempty"`
	EmissiveIntensity float64 `json:"emissiveIntensity,omitempty"`
	Roughness         float64 `json:"roughness"`
	Metalness         float64 `json:"metalness"`
}

// HeroSnapshot is the logo placement for one frame.
type HeroSnapshot struct {
	Material  Material  `json:"material"`
	Transform Transform `json:"transform"`
	Camera    Camera    `json:"camera"`
}

// HeroLogo eases the landing logo toward the pointer and squashes it while it
// is held. It is not safe for concurrent use.
type HeroLogo struct {
	rotation Vec3
	gooey    Vec3
}

// NewHeroLogo returns a logo at rest.
func NewHeroLogo() *HeroLogo {
	return &HeroLogo{gooey: Uniform(1)}
}

// Step advances the logo by one frame.
func (h *HeroLogo) Step(in HeroInput) HeroSnapshot {
	targetY := (in.Pointer.X - 0.5) * heroMaxTiltY
	targetX := (in.Pointer.Y - 0.5) * heroMaxTiltX
	h.rotation.Y = Lerp(h.rotation.Y, targetY, tiltLerp)
	h.rotation.X = Lerp(h.rotation.X, targetX, tiltLerp)

	if in.Dragging {
		h.gooey.X = Lerp(h.gooey.X, 1+math.Sin(6*in.T)*squashAmount, squashLerp)
		h.gooey.Y = Lerp(h.gooey.Y, 1+math.Sin(4*in.T+1)*squashAmount, squashLerp)
		h.gooey.Z = Lerp(h.gooey.Z, 1+math.Sin(8*in.T+2)*squashAmount, squashLerp)
	} else {
		h.gooey.X = Lerp(h.gooey.X, 1, releaseLerp)
		h.gooey.Y = Lerp(h.gooey.Y, 1, releaseLerp)
		h.gooey.Z = Lerp(h.gooey.Z, 1, releaseLerp)
	}

	scale := HeroScale(in.Width)
	return HeroSnapshot{
		Material: Material{
			Color:             HeroColor,
			Emissive:          HeroColor,
			EmissiveIntensity: 0.1,
			Roughness:         0.8,
		},
		Transform: Transform{
			Position: Vec3{Y: 0.5},
			Rotation: h.rotation,
			Scale:    h.gooey.Scale(scale),
		},
		Camera: HeroCamera(in.Width),
	}
}

// HeroScale is the responsive logo scale.
func HeroScale(width int) float64 {
	switch {
	case width <= 480:
		return 0.4
	case width <= 768:
		return 0.6
	case width <= 1024:
		return 1
	default:
		return 1.2
	}
}

// HeroCamera is the responsive logo camera.
func HeroCamera(width int) Camera {
	if width <= 768 {
		return Camera{Position: Vec3{Z: 5}, FOV: 50}
	}
	return Camera{Position: Vec3{Z: 6}, FOV: 45}
}

// CircularPath is an SVG circle path carrying text around the globe.
type CircularPath struct {
	Text string `json:"text"`
	Size int    `json:"size"`
	D    string `json:"d"`
}

// NewCircularPath builds the near-closed arc for text of the given radius.
func NewCircularPath(text string, radius int) CircularPath {
	return CircularPath{
		Text: text,
		Size: radius*2 + 2*circlePadding,
		D: fmt.Sprintf("M %d %d A %d %d 0 1 1 %.1f %d",
			radius+circlePadding, circlePadding, radius, radius,
			float64(radius+circlePadding)-0.1, circlePadding),
	}
}

// GlobeSnapshot is the earth placement for one frame.
type GlobeSnapshot struct {
	Rotation Vec3         `json:"rotation"`
	Scale    Vec3         `json:"scale"`
	Label    CircularPath `json:"label"`
}

// Globe spins the earth and tilts it toward the pointer while dragged. It is
// not safe for concurrent use.
type Globe struct {
	rotation Vec3
}

// Step advances the globe by one frame.
func (g *Globe) Step(pointer Pointer, dragging bool) GlobeSnapshot {
	g.rotation.Y += globeSpin
	if dragging {
		g.rotation.X = Lerp(g.rotation.X, (pointer.Y-0.5)*globeMaxTilt, tiltLerp)
		g.rotation.Z = Lerp(g.rotation.Z, (pointer.X-0.5)*globeMaxTilt, tiltLerp)
	}
	return GlobeSnapshot{
		Rotation: g.rotation,
		Scale:    Vec3{X: 1, Y: -1, Z: 1},
		Label:    NewCircularPath(GlobeText+GlobeText, GlobeTextRadius),
	}
}
