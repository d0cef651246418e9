// Environmental fields sampled by agent considerations.
// Fertility is fixed at generation; danger drifts slowly with sim time.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Field holds the noise layers of a hex world of a given radius.
type Field struct {
	Radius int

	danger    opensimplex.Noise
	fertility opensimplex.Noise

	// DriftRate controls how fast the danger layer moves per unit of time.
	DriftRate float64
	time      float64
}

// NewField creates the noise layers for a world. Layers are independent but
// deterministic for a given seed.
func NewField(seed int64, radius int) *Field {
	return &Field{
		Radius:    radius,
		danger:    opensimplex.NewNormalized(seed + 11),
		fertility: opensimplex.NewNormalized(seed + 12),
		DriftRate: 0.002,
	}
}

// Advance moves the danger layer forward by dt.
func (f *Field) Advance(dt float64) {
	f.time += dt
}

// Time returns the field's accumulated time.
func (f *Field) Time() float64 {
	return f.time
}

// Contains returns true if the coordinate is within the world radius.
func (f *Field) Contains(c HexCoord) bool {
	return c.Ring() <= f.Radius
}

// Danger returns the threat level at c in [0,1]. Hexes outside the world
// are maximally dangerous.
func (f *Field) Danger(c HexCoord) float64 {
	if !f.Contains(c) {
		return 1
	}
	x, y := cartesian(c)
	v := f.danger.Eval3(x*0.15, y*0.15, f.time*f.DriftRate)
	// Sharpen so most of the map is calm with a few hot spots.
	return clamp01(math.Pow(v, 2.5) * 1.8)
}

// Fertility returns how much food foraging at c yields, in [0,1].
func (f *Field) Fertility(c HexCoord) float64 {
	if !f.Contains(c) {
		return 0
	}
	x, y := cartesian(c)
	return clamp01(octaveNoise(f.fertility, x, y, 3, 0.08, 0.5))
}

// SafestNeighbor returns the in-bounds neighbor of c with the lowest danger,
// or c itself if no neighbor is safer.
func (f *Field) SafestNeighbor(c HexCoord) HexCoord {
	best, bestDanger := c, f.Danger(c)
	for _, n := range c.Neighbors() {
		if !f.Contains(n) {
			continue
		}
		if d := f.Danger(n); d < bestDanger {
			best, bestDanger = n, d
		}
	}
	return best
}

// cartesian converts axial hex coords to continuous space for noise sampling.
// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
func cartesian(c HexCoord) (float64, float64) {
	return float64(c.Q) + float64(c.R)*0.5, float64(c.R) * math.Sqrt(3.0) / 2.0
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
