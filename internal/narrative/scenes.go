package narrative

import (
	"math"
	"sync"

	"github.com/fillesume/storefront/internal/animation"
)

// Scene names a group of objects on the biotextil canvas.
type Scene string

// Scenes in draw order.
const (
	SceneOlive       Scene = "olive"
	SceneGrinding    Scene = "grinding"
	SceneSeaweed     Scene = "seaweed"
	SceneLiquid      Scene = "liquid"
	SceneFiber       Scene = "fiber"
	SceneBiomaterial Scene = "biomaterial"
)

// SceneWindow is the half-open stage range [Start, Start+Width) in which a
// scene is drawn. An infinite width never closes.
type SceneWindow struct {
	Start float64 `json:"start"`
	Width float64 `json:"width"`
}

// Visible reports whether the window contains s.
func (w SceneWindow) Visible(s Stage) bool {
	v := float64(s)
	return v >= w.Start && v < w.Start+w.Width
}

// Local maps s to progress through the window, clamped to [0,1]. Open-ended
// windows report 1 once entered.
func (w SceneWindow) Local(s Stage) float64 {
	if math.IsInf(w.Width, 1) {
		return animation.Ramp(float64(s), w.Start, 0)
	}
	return animation.Ramp(float64(s), w.Start, w.Width)
}

var windows = []struct {
	scene  Scene
	window SceneWindow
}{
	{SceneOlive, SceneWindow{Start: 1, Width: 1.2}},
	{SceneGrinding, SceneWindow{Start: 1.8, Width: 0.7}},
	{SceneSeaweed, SceneWindow{Start: 2.2, Width: 0.8}},
	{SceneLiquid, SceneWindow{Start: 2.7, Width: 0.4}},
	{SceneFiber, SceneWindow{Start: 3, Width: 1}},
	{SceneBiomaterial, SceneWindow{Start: 4, Width: math.Inf(1)}},
}

// Window returns the stage window of scene.
func Window(scene Scene) (SceneWindow, bool) {
	for _, w := range windows {
		if w.scene == scene {
			return w.window, true
		}
	}
	return SceneWindow{}, false
}

// AllScenes lists every scene in draw order.
func AllScenes() []Scene {
	out := make([]Scene, len(windows))
	for i, w := range windows {
		out[i] = w.scene
	}
	return out
}

// VisibleScenes lists the scenes drawn at stage s.
func VisibleScenes(s Stage) []Scene {
	var out []Scene
	for _, w := range windows {
		if w.window.Visible(s) {
			out = append(out, w.scene)
		}
	}
	return out
}

// Section is one captioned step of the timeline text.
type Section struct {
	Number string `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

var sections = []Section{
	{Number: "01", Title: "MOLIDO", Body: "Olive pits are ground into fine particles"},
	{Number: "02", Title: "ALGINATE", Body: "Alginate is extracted from brown algae"},
	{Number: "03", Title: "ORGANIC FIBERS", Body: "Natural fibers are mixed with the bio-compound"},
	{Number: "04", Title: "BIOMATERIAL", Body: "Biomaterial is created and cut into garments"},
}

// Sections returns the timeline captions.
func Sections() []Section {
	return append([]Section(nil), sections...)
}

// FiberFrame is the fiber cluster and its spin.
type FiberFrame struct {
	Rotation animation.Vec3     `json:"rotation"`
	Spheres  []animation.Sphere `json:"spheres"`
}

// Frame is every scene snapshot at one stage and time. Scenes that are not
// visible are left nil.
type Frame struct {
	Stage       Stage                       `json:"stage"`
	Time        float64                     `json:"time"`
	Visible     map[Scene]bool              `json:"visible"`
	Olive       *animation.OliveSnapshot    `json:"olive,omitempty"`
	Grinding    *animation.ParticleSnapshot `json:"grinding,omitempty"`
	Seaweed     *animation.SeaweedSnapshot  `json:"seaweed,omitempty"`
	Liquid      *animation.ParticleSnapshot `json:"liquid,omitempty"`
	Fiber       *FiberFrame                 `json:"fiber,omitempty"`
	Biomaterial []animation.Strip           `json:"biomaterial,omitempty"`
}

// Composer owns the particle state of one page view and composes frames.
type Composer struct {
	mu       sync.Mutex
	grinding *animation.Particles
	liquid   *animation.Particles
	fiber    animation.FiberCluster
}

// NewComposer seeds the particle clouds and fiber cluster.
func NewComposer(seed uint64) *Composer {
	return &Composer{
		grinding: animation.NewGrindingParticles(seed),
		liquid:   animation.NewLiquidParticles(seed + 1),
		fiber:    animation.NewFiberCluster(seed + 2),
	}
}

// Frame advances the particle clouds and returns the composed frame. Particle
// positions are copied so the frame may outlive the call.
func (c *Composer) Frame(stage Stage, t float64) Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := float64(stage)
	frame := Frame{Stage: stage, Time: t, Visible: make(map[Scene]bool, len(windows))}
	for _, w := range windows {
		frame.Visible[w.scene] = w.window.Visible(stage)
	}

	if frame.Visible[SceneOlive] {
		olive := animation.OliveStage(s, t)
		frame.Olive = &olive
	}
	if snap := c.grinding.Step(frame.Visible[SceneGrinding], s, t); snap.Visible {
		snap.Positions = append([]animation.Vec3(nil), snap.Positions...)
		frame.Grinding = &snap
	}
	if frame.Visible[SceneSeaweed] {
		seaweed := animation.Seaweed(s, t)
		frame.Seaweed = &seaweed
	}
	if snap := c.liquid.Step(frame.Visible[SceneLiquid], s, t); snap.Visible {
		snap.Positions = append([]animation.Vec3(nil), snap.Positions...)
		frame.Liquid = &snap
	}
	if frame.Visible[SceneFiber] {
		frame.Fiber = &FiberFrame{
			Rotation: animation.FiberRotation(t),
			Spheres:  c.fiber.Spheres,
		}
	}
	if frame.Visible[SceneBiomaterial] {
		frame.Biomaterial = animation.Biomaterial()
	}
	return frame
}
