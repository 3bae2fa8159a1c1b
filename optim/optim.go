// Package optim holds the first-order update rules applied to layer parameters:
// plain gradient descent, momentum, RMSProp and Adam.
//
// Each layer that declares an optimization config gets its own Strategy with its own
// running statistics. Statistics are created lazily on the first update and live for the
// whole training run.
package optim

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Epsilon guards the RMSProp and Adam divisions.
const Epsilon = 1e-8

// Default moving-average coefficients.
const (
	DefaultBeta1 = 0.9
	DefaultBeta2 = 0.999
)

// minCorrection floors the bias-correction denominator, which is 0 at step 0.
const minCorrection = 0.01

// Kind selects the update rule of a layer.
type Kind int

const (
	SGD Kind = iota
	Momentum
	RMSProp
	Adam
)

var kindNames = [...]string{"sgd", "momentum", "rmsprop", "adam"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind converts "sgd", "momentum", "rmsprop" or "adam" (any case) to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "gd" || name == "none" {
		return SGD, nil
	}
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return SGD, errors.Errorf("unknown optimizer %q", s)
}

// Config is the per-layer optimization config.
//
// A zero beta means "unset" and takes DefaultBeta1 or DefaultBeta2, so a beta of
// exactly 0 cannot be expressed; use a small positive value to disable averaging.
type Config struct {
	Kind  Kind
	Beta1 float64
	Beta2 float64
}

// WithDefaults returns a copy of c with unset betas replaced by DefaultBeta1/DefaultBeta2.
func (c Config) WithDefaults() Config {
	if c.Beta1 == 0 {
		c.Beta1 = DefaultBeta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = DefaultBeta2
	}
	return c
}

// Validate checks the kind and that both betas lie in [0, 1).
func (c Config) Validate() error {
	if c.Kind < SGD || c.Kind > Adam {
		return errors.Errorf("invalid optimizer kind %d", int(c.Kind))
	}
	for _, b := range []float64{c.Beta1, c.Beta2} {
		if b < 0 || b >= 1 || math.IsNaN(b) {
			return errors.Errorf("%s: beta %g out of range [0, 1)", c.Kind, b)
		}
	}
	return nil
}

// BiasCorrection returns max(1 - beta^step, 0.01), the denominator used to correct
// running averages that start at zero.
func BiasCorrection(beta float64, step int) float64 {
	return math.Max(1-math.Pow(beta, float64(step)), minCorrection)
}

// Strategy turns raw gradients of one layer into the update directions that are scaled
// by the learning rate and subtracted from the parameters.
type Strategy interface {
	Kind() Kind
	Direction(dW, db *mat.Dense, step int) (uW, ub *mat.Dense)
}

// New returns a fresh Strategy for cfg. A nil cfg means plain gradient descent.
func New(cfg *Config) Strategy {
	if cfg == nil {
		return plain{}
	}
	c := cfg.WithDefaults()
	switch c.Kind {
	case Momentum:
		return &momentum{beta1: c.Beta1}
	case RMSProp:
		return &rmsprop{beta2: c.Beta2}
	case Adam:
		return &adam{beta1: c.Beta1, beta2: c.Beta2}
	default:
		return plain{}
	}
}

// Bank keeps one Strategy per layer, keyed by the 1-based layer index.
type Bank struct {
	configs    map[int]*Config
	strategies map[int]Strategy
}

// NewBank builds a Bank from per-layer configs, configs[i-1] belonging to layer i.
// Nil entries fall back to plain gradient descent.
func NewBank(configs []*Config) *Bank {
	b := &Bank{
		configs:    make(map[int]*Config, len(configs)),
		strategies: make(map[int]Strategy, len(configs)),
	}
	for i, c := range configs {
		if c != nil {
			cc := *c
			b.configs[i+1] = &cc
		}
	}
	return b
}

// Strategy returns the Strategy of layer, creating it on first access.
func (b *Bank) Strategy(layer int) Strategy {
	s, ok := b.strategies[layer]
	if !ok {
		s = New(b.configs[layer])
		b.strategies[layer] = s
	}
	return s
}

// Direction feeds the gradients of layer through its Strategy.
func (b *Bank) Direction(layer int, dW, db *mat.Dense, step int) (uW, ub *mat.Dense) {
	return b.Strategy(layer).Direction(dW, db, step)
}
