package interactive

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// Ingredient is one of the three draggable ingredients.
type Ingredient string

// Ingredients.
const (
	Pits  Ingredient = "pits"
	Algae Ingredient = "algae"
	Water Ingredient = "water"
)

// Ingredients lists the ingredients in tray order.
var Ingredients = []Ingredient{Pits, Algae, Water}

// IngredientState is the lifecycle of an ingredient. Committed is terminal.
type IngredientState string

// Ingredient states.
const (
	Available    IngredientState = "available"
	BeingDragged IngredientState = "dragging"
	Committed    IngredientState = "committed"
)

// Liquid and dot colours.
const (
	ColorBrown      = "#8B4513"
	ColorOliveGreen = "#6B8E23"
	ColorDarkOlive  = "#556B2F"
	ColorAlgae      = "#2E8B57"
	ColorWater      = "#87CEEB"
)

var (
	// ErrUnknownIngredient reports an ingredient outside the tray.
	ErrUnknownIngredient = errors.New("interactive: unknown ingredient")
	// ErrIngredientCommitted reports a drag on an ingredient already in the receptacle.
	ErrIngredientCommitted = errors.New("interactive: ingredient already added")
	// ErrNotDragging reports a drop without a drag.
	ErrNotDragging = errors.New("interactive: ingredient is not being dragged")
)

// Point is a viewport position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HitRect is the receptacle bounds. Edges are inclusive.
type HitRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Contains reports whether p lies inside r.
func (r HitRect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Phase is the coarse progress of the game.
type Phase string

// Phases.
const (
	PhaseDrag  Phase = "drag"
	PhaseMix   Phase = "mix"
	PhaseMixed Phase = "mixed"
)

// MixingGame is the drag-to-mix reducer. Methods return the next state and
// copy States on write, so earlier values stay intact.
type MixingGame struct {
	States      map[Ingredient]IngredientState `json:"ingredients"`
	Interacting bool                           `json:"interacting"`
	Progress    int                            `json:"progress"`
	Step        int                            `json:"-"`
	Target      int                            `json:"target"`
	Settle      time.Duration                  `json:"-"`
	CompleteAt  time.Time                      `json:"completeAt"`
	Scheduled   bool                           `json:"scheduled"`
	Completed   bool                           `json:"completed"`
}

// NewMixingGame starts with every ingredient in the tray.
func NewMixingGame(step, target int, settle time.Duration) MixingGame {
	states := make(map[Ingredient]IngredientState, len(Ingredients))
	for _, ing := range Ingredients {
		states[ing] = Available
	}
	if step <= 0 {
		step = 1
	}
	if target <= 0 {
		target = 100
	}
	return MixingGame{States: states, Step: step, Target: target, Settle: settle}
}

func (g MixingGame) with(ing Ingredient, state IngredientState) MixingGame {
	states := make(map[Ingredient]IngredientState, len(g.States))
	for k, v := range g.States {
		states[k] = v
	}
	states[ing] = state
	g.States = states
	return g
}

// DragStart picks an ingredient up from the tray.
func (g MixingGame) DragStart(ing Ingredient) (MixingGame, error) {
	state, ok := g.States[ing]
	switch {
	case !ok:
		return g, fmt.Errorf("%w: %q", ErrUnknownIngredient, ing)
	case state == Committed:
		return g, ErrIngredientCommitted
	}
	return g.with(ing, BeingDragged), nil
}

// Drop releases a dragged ingredient at p. Inside the receptacle it is
// committed; anywhere else it returns to the tray.
func (g MixingGame) Drop(ing Ingredient, p Point, receptacle HitRect) (MixingGame, error) {
	state, ok := g.States[ing]
	switch {
	case !ok:
		return g, fmt.Errorf("%w: %q", ErrUnknownIngredient, ing)
	case state != BeingDragged:
		return g, ErrNotDragging
	}
	if receptacle.Contains(p) {
		return g.with(ing, Committed), nil
	}
	return g.with(ing, Available), nil
}

// Interact marks the pointer as moving over the liquid or leaving it.
func (g MixingGame) Interact(on bool) MixingGame {
	g.Interacting = on
	return g
}

// AllCommitted reports whether every ingredient is in the receptacle.
func (g MixingGame) AllCommitted() bool {
	for _, ing := range Ingredients {
		if g.States[ing] != Committed {
			return false
		}
	}
	return true
}

// Mixing reports whether ticks currently advance progress.
func (g MixingGame) Mixing() bool {
	return g.Interacting && g.AllCommitted() && g.Progress < g.Target
}

// Tick advances progress by one step when mixing. Reaching the target
// schedules completion once, Settle after now.
func (g MixingGame) Tick(now time.Time) MixingGame {
	if !g.Mixing() {
		return g
	}
	g.Progress = min(g.Target, g.Progress+g.Step)
	if g.Progress >= g.Target && !g.Scheduled {
		g.Scheduled = true
		g.CompleteAt = now.Add(g.Settle)
	}
	return g
}

// Finish fires the scheduled completion. fired is true exactly once.
func (g MixingGame) Finish(now time.Time) (next MixingGame, fired bool) {
	if !g.Scheduled || g.Completed || now.Before(g.CompleteAt) {
		return g, false
	}
	g.Completed = true
	return g, true
}

// Phase reports which step of the game is showing.
func (g MixingGame) Phase() Phase {
	switch {
	case !g.AllCommitted():
		return PhaseDrag
	case g.Progress < g.Target:
		return PhaseMix
	default:
		return PhaseMixed
	}
}

// Percent is progress scaled to 0..100.
func (g MixingGame) Percent() int {
	if g.Target <= 0 {
		return 0
	}
	return g.Progress * 100 / g.Target
}

// LiquidColor is the colour of the mixture at the current progress.
func (g MixingGame) LiquidColor() string {
	return LiquidColor(g.Percent())
}

// LiquidColor maps mixing percent to the liquid colour band.
func LiquidColor(percent int) string {
	switch {
	case percent < 30:
		return ColorBrown
	case percent < 60:
		return ColorOliveGreen
	default:
		return ColorDarkOlive
	}
}

// Instructions returns the heading and hint shown above the receptacle.
func (g MixingGame) Instructions() (heading, hint string) {
	switch g.Phase() {
	case PhaseDrag:
		return "DRAG INGREDIENTS INTO THE RECEPTACLE", ""
	case PhaseMix:
		return "MIX THE INGREDIENTS", "Move your mouse/finger over the liquid to mix"
	default:
		return "MIX THE INGREDIENTS", "Perfectly mixed! ✓"
	}
}

// DotColor is the colour of the dots an ingredient leaves in the receptacle.
func DotColor(ing Ingredient) string {
	switch ing {
	case Pits:
		return ColorBrown
	case Algae:
		return ColorAlgae
	case Water:
		return ColorWater
	default:
		return ""
	}
}

// DefaultDotCount is the number of dots drawn per committed ingredient.
const DefaultDotCount = 800

// Dot is one speck of a committed ingredient, positioned in percent.
type Dot struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
}

// Dots scatters count dots for ing, reproducibly from seed.
func Dots(ing Ingredient, count int, seed uint64) []Dot {
	color := DotColor(ing)
	if color == "" || count <= 0 {
		return nil
	}
	h := fnv.New64a()
	h.Write([]byte(ing))
	rng := rand.New(rand.NewPCG(seed, h.Sum64()))
	out := make([]Dot, count)
	for i := range out {
		out[i] = Dot{
			X:     rng.Float64() * 100,
			Y:     rng.Float64() * 100,
			Size:  rng.Float64()*6 + 3,
			Color: color,
		}
	}
	return out
}
