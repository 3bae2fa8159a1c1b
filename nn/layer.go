// Package nn implements a feed-forward network for binary classification on gonum
// matrices: parameter initialization, forward propagation with inverted dropout,
// backward propagation and the optimizer-mediated parameter update.
//
// Batches are laid out column-wise: a batch of m samples with n features is an n×m
// matrix and labels are a 1×m row.
package nn

import (
	"math"

	"github.com/pkg/errors"

	"ffnet/optim"
)

var (
	ErrEmptyTopology = errors.New("topology needs at least one layer")
	ErrInvalidUnits  = errors.New("layer units must be positive")
	ErrShape         = errors.New("shape mismatch")
)

// Layer is the declarative configuration of one layer.
//
// Zero values of the optional fields take their defaults: KeepProb 1 (no dropout),
// Lambd 0, LearningRate optim.Constant(0.01) and plain gradient descent when
// Optimization is nil. A KeepProb of 0 is therefore "unset", not "drop everything";
// set values must lie in (0, 1].
type Layer struct {
	Units        int
	Activation   Activator
	KeepProb     float64
	Lambd        float64
	LearningRate optim.Schedule
	Optimization *optim.Config
}

func (l Layer) withDefaults() Layer {
	if l.KeepProb == 0 {
		l.KeepProb = 1
	}
	if l.LearningRate == nil {
		l.LearningRate = optim.Constant(optim.DefaultLearningRate)
	}
	if l.Optimization != nil {
		c := l.Optimization.WithDefaults()
		l.Optimization = &c
	}
	return l
}

func (l Layer) validate(index int) error {
	if l.Units <= 0 {
		return errors.Wrapf(ErrInvalidUnits, "layer %d has %d units", index, l.Units)
	}
	if l.Activation == nil {
		return errors.Errorf("layer %d has no activation", index)
	}
	if !(l.KeepProb > 0 && l.KeepProb <= 1) {
		return errors.Errorf("layer %d: keep_prob %g not in (0, 1]", index, l.KeepProb)
	}
	if l.Lambd < 0 || math.IsNaN(l.Lambd) {
		return errors.Errorf("layer %d: lambd %g is negative", index, l.Lambd)
	}
	if l.Optimization != nil {
		if err := l.Optimization.Validate(); err != nil {
			return errors.WithMessagef(err, "layer %d", index)
		}
	}
	return nil
}

// Topology is a validated sequence of layers on top of an input of InputDim features.
// Layers are numbered 1..Len(); layer 0 is the input.
type Topology struct {
	inputDim int
	layers   []Layer
}

// NewTopology applies defaults to every layer and validates the result.
func NewTopology(inputDim int, layers []Layer) (Topology, error) {
	if len(layers) == 0 {
		return Topology{}, ErrEmptyTopology
	}
	if inputDim <= 0 {
		return Topology{}, errors.Wrapf(ErrInvalidUnits, "input dimension is %d", inputDim)
	}
	t := Topology{inputDim: inputDim, layers: make([]Layer, len(layers))}
	for i, l := range layers {
		l = l.withDefaults()
		if err := l.validate(i + 1); err != nil {
			return Topology{}, err
		}
		t.layers[i] = l
	}
	return t, nil
}

// Len is the number of layers L.
func (t Topology) Len() int { return len(t.layers) }

// InputDim is the width of layer 0.
func (t Topology) InputDim() int { return t.inputDim }

// Layer returns layer i, 1 <= i <= Len().
func (t Topology) Layer(i int) Layer { return t.layers[i-1] }

// Layers returns a copy of the defaulted layer configs.
func (t Topology) Layers() []Layer {
	return append([]Layer(nil), t.layers...)
}

// Width returns the output width of layer i; Width(0) is the input dimension.
func (t Topology) Width(i int) int {
	if i == 0 {
		return t.inputDim
	}
	return t.layers[i-1].Units
}

// OptimizerConfigs lists the optimization config of every layer, nil for plain descent.
func (t Topology) OptimizerConfigs() []*optim.Config {
	configs := make([]*optim.Config, len(t.layers))
	for i, l := range t.layers {
		configs[i] = l.Optimization
	}
	return configs
}
