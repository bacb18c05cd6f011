// Package animation computes per-frame snapshots for the decorative scenes.
// Every function is a pure function of elapsed time, stage and interaction
// state, so the same inputs always yield the same snapshot.
package animation

import "math"

// Vec3 is a position, rotation or scale triple.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Uniform returns a Vec3 with every component set to v.
func Uniform(v float64) Vec3 {
	return Vec3{X: v, Y: v, Z: v}
}

// Scale multiplies every component by k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Clamp01 clamps x to [0, 1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x <= 0:
		return 0
	case x >= 1:
		return 1
	default:
		return x
	}
}

// Smoothstep eases x in [0, 1] with 3x² − 2x³.
func Smoothstep(x float64) float64 {
	x = Clamp01(x)
	return x * x * (3 - 2*x)
}

// Lerp moves from toward to by factor k.
func Lerp(from, to, k float64) float64 {
	return from + (to-from)*k
}

// Ramp maps s into [0, 1] over the window starting at start with the given width.
func Ramp(s, start, width float64) float64 {
	if width <= 0 {
		if s >= start {
			return 1
		}
		return 0
	}
	return Clamp01((s - start) / width)
}
