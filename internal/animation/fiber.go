package animation

import (
	"math"
	"math/rand/v2"
)

// Wool tones shared by the fiber cluster and the wool ball.
var woolColors = []string{"#fdfbf7", "#fff8f0", "#f5f3ed", "#faf8f3"}

// Sphere is a coloured ball placed in a group.
type Sphere struct {
	Position Vec3    `json:"position"`
	Radius   float64 `json:"radius"`
	Color    string  `json:"color"`
}

// FiberClusterSize is the sphere count of the organic fiber cluster.
const FiberClusterSize = 60

// FiberCluster is the loose ball of organic fibers shown between stage 3 and 4.
type FiberCluster struct {
	Spheres []Sphere `json:"spheres"`
}

// NewFiberCluster scatters the spheres on a shell between radius 0.2 and 0.5.
func NewFiberCluster(seed uint64) FiberCluster {
	rng := rand.New(rand.NewPCG(seed, seed^0xbf58476d1ce4e5b9))
	palette := woolColors[:3]
	spheres := make([]Sphere, FiberClusterSize)
	for i := range spheres {
		pos := shellPoint(rng, 0.2, 0.3)
		spheres[i] = Sphere{
			Position: pos,
			Radius:   0.03 + rng.Float64()*0.04,
			Color:    palette[rng.IntN(len(palette))],
		}
	}
	return FiberCluster{Spheres: spheres}
}

// FiberRotation is the slow spin of the cluster.
func FiberRotation(t float64) Vec3 {
	return Vec3{Y: 0.1 * t}
}

// shellPoint picks a uniformly distributed direction at radius base+rand·spread.
func shellPoint(rng *rand.Rand, base, spread float64) Vec3 {
	phi := math.Acos(2*rng.Float64() - 1)
	theta := rng.Float64() * 2 * math.Pi
	r := base + rng.Float64()*spread
	return Vec3{
		X: r * math.Sin(phi) * math.Cos(theta),
		Y: r * math.Sin(phi) * math.Sin(theta),
		Z: r * math.Cos(phi),
	}
}

// Wool ball generator sizes.
const (
	WoolCurls       = 200
	WoolFluff       = 400
	curlPoints      = 12
	fluffVertices   = 36
	curlTurns       = 2
	curlTubeSegment = 16
)

// Curl is one spiral fiber, rendered as a tube along Points.
type Curl struct {
	Points     []Vec3  `json:"points"`
	TubeRadius float64 `json:"tubeRadius"`
	Segments   int     `json:"segments"`
	Rotation   Vec3    `json:"rotation"`
	Color      string  `json:"color"`
}

// Fluff is a distorted low-poly sphere. Noise holds one radial factor per
// vertex of a 5×5 sphere.
type Fluff struct {
	Sphere
	Noise    []float64 `json:"noise"`
	Rotation Vec3      `json:"rotation"`
}

// WoolBall is the procedural wool shown in the fiber showcase.
type WoolBall struct {
	Curls []Curl  `json:"curls"`
	Fluff []Fluff `json:"fluff"`
}

// NewWoolBall builds the curls and fluff spheres from seed.
func NewWoolBall(seed uint64) WoolBall {
	rng := rand.New(rand.NewPCG(seed, seed^0xd6e8feb86659fd93))
	ball := WoolBall{
		Curls: make([]Curl, WoolCurls),
		Fluff: make([]Fluff, WoolFluff),
	}

	for i := range ball.Curls {
		center := shellPoint(rng, 0.15, 0.2)
		curlRadius := 0.03 + rng.Float64()*0.02
		curlHeight := 0.1 + rng.Float64()*0.08
		startAngle := rng.Float64() * 2 * math.Pi
		axis := rng.Float64() * 2 * math.Pi
		sinA, cosA := math.Sincos(axis)

		points := make([]Vec3, curlPoints)
		for j := range points {
			frac := float64(j) / curlPoints
			angle := startAngle + frac*2*math.Pi*curlTurns
			lx := math.Cos(angle) * curlRadius
			ly := math.Sin(angle) * curlRadius
			points[j] = Vec3{
				X: center.X + lx*cosA - ly*sinA,
				Y: center.Y + lx*sinA + ly*cosA,
				Z: center.Z + frac*curlHeight - curlHeight/2,
			}
		}
		ball.Curls[i] = Curl{
			Points:     points,
			TubeRadius: 0.015 + rng.Float64()*0.01,
			Segments:   curlTubeSegment,
			Color:      woolColors[rng.IntN(len(woolColors))],
			Rotation:   randomRotation(rng),
		}
	}

	for i := range ball.Fluff {
		pos := shellPoint(rng, 0.1, 0.25)
		radius := 0.025 + rng.Float64()*0.04
		noise := make([]float64, fluffVertices)
		for j := range noise {
			noise[j] = 0.3 + rng.Float64()*0.4
		}
		ball.Fluff[i] = Fluff{
			Sphere: Sphere{
				Position: pos,
				Radius:   radius,
				Color:    woolColors[rng.IntN(len(woolColors))],
			},
			Noise:    noise,
			Rotation: randomRotation(rng),
		}
	}
	return ball
}

func randomRotation(rng *rand.Rand) Vec3 {
	return Vec3{
		X: rng.Float64() * 2 * math.Pi,
		Y: rng.Float64() * 2 * math.Pi,
		Z: rng.Float64() * 2 * math.Pi,
	}
}
