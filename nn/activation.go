package nn

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Activator is an elementwise activation function.
type Activator interface {
	// Activate is shaped for mat.Dense.Apply.
	Activate(i, j int, sum float64) float64
	// Deactivate returns the derivative evaluated at the pre-activations z.
	Deactivate(z mat.Matrix) *mat.Dense
	fmt.Stringer
}

// ActivatorLookup maps activation names to their implementation.
var ActivatorLookup = map[string]Activator{
	"sigmoid": Sigmoid{},
	"relu":    ReLU{},
}

// ParseActivator resolves a name from ActivatorLookup, ignoring case.
func ParseActivator(name string) (Activator, error) {
	a, ok := ActivatorLookup[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Errorf("unknown activation %q", name)
	}
	return a, nil
}

type Sigmoid struct{}

func (Sigmoid) Activate(_, _ int, sum float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sum))
}

func (s Sigmoid) Deactivate(z mat.Matrix) *mat.Dense {
	return apply(func(i, j int, v float64) float64 {
		a := s.Activate(i, j, v)
		return a * (1 - a)
	}, z)
}

func (Sigmoid) String() string {
	return "sigmoid"
}

type ReLU struct{}

func (ReLU) Activate(_, _ int, sum float64) float64 {
	if sum > 0 {
		return sum
	}
	return 0
}

// Deactivate is 1 where z > 0 and 0 elsewhere, including z == 0.
func (ReLU) Deactivate(z mat.Matrix) *mat.Dense {
	return apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, z)
}

func (ReLU) String() string {
	return "relu"
}
