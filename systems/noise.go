package systems

import (
	perlin "github.com/aquilax/go-perlin"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/cellsim/components"
)

// Noise parameters: persistence, lacunarity and octaves.
const (
	noiseAlpha   = 2.0
	noiseBeta    = 2.0
	noiseOctaves = 3
	// noiseScale maps world units to noise lattice units.
	noiseScale = 0.15
)

// SignalField samples initial signalling-substance concentrations from
// coherent 3D noise, so neighbouring spawns start with similar internal state.
type SignalField struct {
	layers [components.NumSignals]*perlin.Perlin
}

// NewSignalField creates one noise layer per signal, seeded from seed.
func NewSignalField(seed int64) *SignalField {
	f := &SignalField{}
	for i := range f.layers {
		f.layers[i] = perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed+int64(i)*7919)
	}
	return f
}

// Sample returns the concentrations at p, each in [0, 1].
func (f *SignalField) Sample(p r3.Vec) [components.NumSignals]float64 {
	var out [components.NumSignals]float64
	x, y, z := p.X*noiseScale, p.Y*noiseScale, p.Z*noiseScale
	for i, layer := range f.layers {
		v := 0.5 + 0.5*layer.Noise3D(x, y, z)
		out[i] = min(max(v, 0), 1)
	}
	return out
}
