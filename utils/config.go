package utils

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ffnet/nn"
	"ffnet/optim"
)

// LayerConfig is one parsed entry of an architecture string.
type LayerConfig struct {
	Units      int
	Activation string
	KeepProb   float64
	Lambd      float64
}

// Config holds training configuration
type Config struct {
	Architecture  []LayerConfig
	DataPath      string
	DevPath       string
	Label         string
	DevFraction   float64
	Standardize   bool
	BatchSize     int
	Epochs        int
	LearningRate  float64
	Decay         float64
	Optimizer     string
	Initializer   string
	Beta1, Beta2  float64
	Seed          uint64
	ValidateEvery int
	StopOnNaN     bool
}

// ParseLayers parses a comma-separated architecture such as "8:relu:0.9:0.01,1:sigmoid".
// Each entry is units:activation[:keep_prob[:lambd]]; keep_prob defaults to 1 and
// lambd to 0.
func ParseLayers(s string) ([]LayerConfig, error) {
	var layers []LayerConfig
	for i, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, errors.Errorf("layer %d: %q is not units:activation[:keep_prob[:lambd]]", i+1, entry)
		}
		units, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d: units", i+1)
		}
		l := LayerConfig{Units: units, Activation: strings.TrimSpace(parts[1]), KeepProb: 1}
		if len(parts) > 2 {
			if l.KeepProb, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err != nil {
				return nil, errors.Wrapf(err, "layer %d: keep_prob", i+1)
			}
		}
		if len(parts) > 3 {
			if l.Lambd, err = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err != nil {
				return nil, errors.Wrapf(err, "layer %d: lambd", i+1)
			}
		}
		layers = append(layers, l)
	}
	if len(layers) == 0 {
		return nil, nn.ErrEmptyTopology
	}
	return layers, nil
}

// ValidateConfig validates training configuration
func ValidateConfig(config *Config) error {
	if len(config.Architecture) == 0 {
		return nn.ErrEmptyTopology
	}
	for i, l := range config.Architecture {
		if l.Units <= 0 {
			return errors.Wrapf(nn.ErrInvalidUnits, "layer %d has %d units", i+1, l.Units)
		}
		if _, err := nn.ParseActivator(l.Activation); err != nil {
			return errors.WithMessagef(err, "layer %d", i+1)
		}
		if !(l.KeepProb > 0 && l.KeepProb <= 1) {
			return errors.Errorf("layer %d: keep_prob %g not in (0, 1]", i+1, l.KeepProb)
		}
		if l.Lambd < 0 {
			return errors.Errorf("layer %d: lambd %g is negative", i+1, l.Lambd)
		}
	}
	if config.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if config.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if config.LearningRate <= 0 {
		return errors.New("learning rate must be positive")
	}
	if config.Decay < 0 {
		return errors.New("decay must not be negative")
	}
	if config.DevFraction < 0 || config.DevFraction >= 1 {
		return errors.Errorf("dev fraction %g not in [0, 1)", config.DevFraction)
	}
	if _, err := nn.ParseInitializer(config.Initializer, nil); err != nil {
		return err
	}
	kind, err := optim.ParseKind(config.Optimizer)
	if err != nil {
		return err
	}
	return optim.Config{Kind: kind, Beta1: config.Beta1, Beta2: config.Beta2}.WithDefaults().Validate()
}

// Schedule is the learning-rate schedule shared by every layer: constant, or inverse
// time decay when Decay is set.
func (c *Config) Schedule() optim.Schedule {
	if c.Decay > 0 {
		return optim.InverseTimeDecay(c.LearningRate, c.Decay)
	}
	return optim.Constant(c.LearningRate)
}

// Layers resolves the architecture into layer configs that share the schedule and
// optimizer of c.
func (c *Config) Layers() ([]nn.Layer, error) {
	kind, err := optim.ParseKind(c.Optimizer)
	if err != nil {
		return nil, err
	}
	var opt *optim.Config
	if kind != optim.SGD {
		opt = &optim.Config{Kind: kind, Beta1: c.Beta1, Beta2: c.Beta2}
	}
	schedule := c.Schedule()
	layers := make([]nn.Layer, len(c.Architecture))
	for i, l := range c.Architecture {
		act, err := nn.ParseActivator(l.Activation)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i+1)
		}
		layers[i] = nn.Layer{
			Units:        l.Units,
			Activation:   act,
			KeepProb:     l.KeepProb,
			Lambd:        l.Lambd,
			LearningRate: schedule,
			Optimization: opt,
		}
	}
	return layers, nil
}

// FormatLayers is the inverse of ParseLayers.
func FormatLayers(layers []LayerConfig) string {
	parts := make([]string, len(layers))
	for i, l := range layers {
		parts[i] = strconv.Itoa(l.Units) + ":" + l.Activation
		if l.KeepProb != 1 || l.Lambd != 0 {
			parts[i] += ":" + strconv.FormatFloat(l.KeepProb, 'g', -1, 64)
		}
		if l.Lambd != 0 {
			parts[i] += ":" + strconv.FormatFloat(l.Lambd, 'g', -1, 64)
		}
	}
	return strings.Join(parts, ",")
}
