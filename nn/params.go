package nn

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LayerParams are the weights (units × fan-in) and bias (units × 1) of one layer.
type LayerParams struct {
	W, B *mat.Dense
}

// Parameters owns the tensors of every layer.
type Parameters struct {
	layers []LayerParams
}

// NewParameters wraps already built tensors, layers[i-1] belonging to layer i.
func NewParameters(layers []LayerParams) *Parameters {
	return &Parameters{layers: layers}
}

// Len is the number of layers.
func (p *Parameters) Len() int { return len(p.layers) }

// Layer returns the tensors of layer i, 1 <= i <= Len().
func (p *Parameters) Layer(i int) *LayerParams { return &p.layers[i-1] }

// W returns the weight matrix of layer i.
func (p *Parameters) W(i int) *mat.Dense { return p.layers[i-1].W }

// B returns the bias vector of layer i.
func (p *Parameters) B(i int) *mat.Dense { return p.layers[i-1].B }

// Count is the total number of scalars.
func (p *Parameters) Count() int {
	n := 0
	for _, l := range p.layers {
		r, c := l.W.Dims()
		n += r * c
		r, c = l.B.Dims()
		n += r * c
	}
	return n
}

// Clone deep-copies every tensor.
func (p *Parameters) Clone() *Parameters {
	layers := make([]LayerParams, len(p.layers))
	for i, l := range p.layers {
		layers[i] = LayerParams{W: mat.DenseCopyOf(l.W), B: mat.DenseCopyOf(l.B)}
	}
	return NewParameters(layers)
}

// Check verifies the tensors against the topology.
func (p *Parameters) Check(t Topology) error {
	if p.Len() != t.Len() {
		return errors.Wrapf(ErrShape, "%d parameter layers for a %d layer topology", p.Len(), t.Len())
	}
	for i := 1; i <= t.Len(); i++ {
		wr, wc := p.W(i).Dims()
		br, bc := p.B(i).Dims()
		if wr != t.Width(i) || wc != t.Width(i-1) || br != t.Width(i) || bc != 1 {
			return errors.Wrapf(ErrShape, "layer %d: W is %dx%d and b is %dx%d, want %dx%d and %dx1",
				i, wr, wc, br, bc, t.Width(i), t.Width(i-1), t.Width(i))
		}
	}
	return nil
}

// Initializer produces the initial tensors of one layer.
type Initializer interface {
	Init(inputWidth, outputWidth, sampleCount int) (w, b *mat.Dense)
}

// InitializerFunc adapts a function to Initializer.
type InitializerFunc func(inputWidth, outputWidth, sampleCount int) (w, b *mat.Dense)

func (f InitializerFunc) Init(inputWidth, outputWidth, sampleCount int) (w, b *mat.Dense) {
	return f(inputWidth, outputWidth, sampleCount)
}

// HeInitializer draws weights from N(0, 2/fan-in) and zeroes the biases.
// A nil Src uses the global math/rand/v2 source.
type HeInitializer struct {
	Src rand.Source
}

func (h HeInitializer) Init(inputWidth, outputWidth, _ int) (w, b *mat.Dense) {
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(inputWidth)), Src: h.Src}
	return mat.NewDense(outputWidth, inputWidth, draw(dist, outputWidth*inputWidth)), mat.NewDense(outputWidth, 1, nil)
}

// UniformInitializer draws weights from U(-1/√fan-in, 1/√fan-in) and zeroes the biases.
type UniformInitializer struct {
	Src rand.Source
}

func (u UniformInitializer) Init(inputWidth, outputWidth, _ int) (w, b *mat.Dense) {
	v := float64(inputWidth)
	dist := distuv.Uniform{Min: -1 / math.Sqrt(v), Max: 1 / math.Sqrt(v), Src: u.Src}
	return mat.NewDense(outputWidth, inputWidth, draw(dist, outputWidth*inputWidth)), mat.NewDense(outputWidth, 1, nil)
}

// InitializerLookup lists the initializers ParseInitializer accepts.
var InitializerLookup = []string{"he", "uniform"}

// ParseInitializer returns the named initializer drawing from src, ignoring case.
// A nil src uses the global math/rand/v2 source.
func ParseInitializer(name string, src rand.Source) (Initializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "he":
		return HeInitializer{Src: src}, nil
	case "uniform":
		return UniformInitializer{Src: src}, nil
	}
	return nil, errors.Errorf("unknown initializer %q, want one of %v", name, InitializerLookup)
}

func draw(dist distuv.Rander, size int) []float64 {
	data := make([]float64, size)
	for i := range data {
		data[i] = dist.Rand()
	}
	return data
}

// Initialize requests the tensors of every layer from init, in order.
func Initialize(t Topology, sampleCount int, init Initializer) (*Parameters, error) {
	if t.Len() == 0 {
		return nil, ErrEmptyTopology
	}
	if init == nil {
		init = HeInitializer{}
	}
	layers := make([]LayerParams, t.Len())
	for i := 1; i <= t.Len(); i++ {
		in, out := t.Width(i-1), t.Width(i)
		if out <= 0 {
			return nil, errors.Wrapf(ErrInvalidUnits, "layer %d has %d units", i, out)
		}
		w, b := init.Init(in, out, sampleCount)
		layers[i-1] = LayerParams{W: w, B: b}
	}
	p := NewParameters(layers)
	if err := p.Check(t); err != nil {
		return nil, errors.WithMessage(err, "initializer returned wrongly shaped tensors")
	}
	return p, nil
}
