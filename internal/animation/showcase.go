package animation

import "math"

// Transform is the animated placement of a showcase model.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// Camera is a perspective camera placement.
type Camera struct {
	Position Vec3    `json:"position"`
	FOV      float64 `json:"fov"`
}

// Size is the responsive container height and model scale.
type Size struct {
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// ShowcaseSize picks the container height and scale for a viewport width. A
// positive fixedHeight pins the height and keeps the model at unit scale.
func ShowcaseSize(width, fixedHeight int) Size {
	if fixedHeight > 0 {
		return Size{Height: fixedHeight, Scale: 1}
	}
	switch {
	case width <= 480:
		return Size{Height: 250, Scale: 0.8}
	case width <= 768:
		return Size{Height: 300, Scale: 0.9}
	case width <= 1024:
		return Size{Height: 300, Scale: 1.0}
	case width <= 1200:
		return Size{Height: 350, Scale: 1.1}
	default:
		return Size{Height: 400, Scale: 1.2}
	}
}

// ShowcaseCamera frames the olive and seaweed showcases.
func ShowcaseCamera(width int) Camera {
	if width <= 768 {
		return Camera{Position: Vec3{Z: 4}, FOV: 50}
	}
	return Camera{Position: Vec3{Z: 5}, FOV: 45}
}

// FiberCamera frames the wool ball, which sits closer to the lens.
func FiberCamera(width int) Camera {
	if width <= 768 {
		return Camera{Position: Vec3{Z: 2}, FOV: 50}
	}
	return Camera{Position: Vec3{Z: 2.5}, FOV: 45}
}

// OliveShowcase tumbles the olive on three axes and bobs it around y=−0.2.
func OliveShowcase(t, scale float64) Transform {
	return Transform{
		Position: Vec3{Y: -0.2 + math.Sin(0.5*t)*0.1},
		Rotation: Vec3{X: 0.25 * t, Y: 0.4 * t, Z: 0.15 * t},
		Scale:    Uniform(scale),
	}
}

// SeaweedShowcase sways the seaweed as if it were under water.
func SeaweedShowcase(t, scale float64) Transform {
	return Transform{
		Position: Vec3{Y: -1 + math.Sin(0.4*t)*0.1},
		Rotation: Vec3{X: math.Cos(0.3*t) * 0.05, Z: math.Sin(0.5*t) * 0.1},
		Scale:    Uniform(scale),
	}
}

// FiberShowcase floats, spins and pulses the wool ball.
func FiberShowcase(t, scale float64) Transform {
	pulse := 1 + math.Sin(0.4*t)*0.05
	return Transform{
		Position: Vec3{Y: math.Sin(0.3*t) * 0.15},
		Rotation: Vec3{
			X: math.Sin(0.2*t) * 0.1,
			Y: 0.15 * t,
			Z: math.Cos(0.25*t) * 0.1,
		},
		Scale: Uniform(scale * pulse),
	}
}
