package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"ffnet/nn"
	"ffnet/tensor"
)

// WeightsVersion is written into every saved model.
const WeightsVersion = "1"

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model
type ModelWeights struct {
	Version  string        `json:"version"`
	InputDim int           `json:"input_dim"`
	Layers   []LayerWeight `json:"layers"`

	// Mean and Std are the input standardisation the model was trained with, if any.
	Mean []float64 `json:"mean,omitempty"`
	Std  []float64 `json:"std,omitempty"`
}

// LayerWeight contains the configuration, weights and bias of a layer
type LayerWeight struct {
	Units      int         `json:"units"`
	Activation string      `json:"activation"`
	KeepProb   float64     `json:"keep_prob"`
	Lambd      float64     `json:"lambd,omitempty"`
	Weight     *WeightData `json:"weight"`
	Bias       *WeightData `json:"bias"`
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return errors.Wrapf(os.WriteFile(filepath, data, 0644), "failed to write %s", filepath)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights file")
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal weights")
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

// CheckWeightData verifies that every dimension is positive and that Data fills Shape.
func CheckWeightData(wd *WeightData) error {
	for _, d := range wd.Shape {
		if d <= 0 {
			return errors.Errorf("%s: invalid shape %v", wd.Name, wd.Shape)
		}
	}
	if want := tensor.Size(wd.Shape); len(wd.Data) != want {
		return errors.Errorf("%s: shape %v needs %d values, got %d", wd.Name, wd.Shape, want, len(wd.Data))
	}
	return nil
}

func weightDataToDense(wd *WeightData) (*mat.Dense, error) {
	if err := CheckWeightData(wd); err != nil {
		return nil, err
	}
	return WeightDataToTensor(wd).Dense()
}

// FromParameters captures the topology and the trained tensors of a network.
func FromParameters(t nn.Topology, p *nn.Parameters) *ModelWeights {
	w := &ModelWeights{Version: WeightsVersion, InputDim: t.InputDim()}
	for i := 1; i <= t.Len(); i++ {
		l := t.Layer(i)
		w.Layers = append(w.Layers, LayerWeight{
			Units:      l.Units,
			Activation: l.Activation.String(),
			KeepProb:   l.KeepProb,
			Lambd:      l.Lambd,
			Weight:     TensorToWeightData(fmt.Sprintf("W%d", i), tensor.FromDense(p.W(i))),
			Bias:       TensorToWeightData(fmt.Sprintf("b%d", i), tensor.FromDense(p.B(i))),
		})
	}
	return w
}

// ToParameters rebuilds the layer configs and the parameters saved by FromParameters,
// checking every tensor against the recorded topology.
func ToParameters(w *ModelWeights) ([]nn.Layer, *nn.Parameters, error) {
	if w.Version != WeightsVersion {
		return nil, nil, errors.Errorf("unsupported weights version %q", w.Version)
	}
	layers := make([]nn.Layer, len(w.Layers))
	params := make([]nn.LayerParams, len(w.Layers))
	for i, lw := range w.Layers {
		act, err := nn.ParseActivator(lw.Activation)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "layer %d", i+1)
		}
		layers[i] = nn.Layer{Units: lw.Units, Activation: act, KeepProb: lw.KeepProb, Lambd: lw.Lambd}
		if lw.Weight == nil || lw.Bias == nil {
			return nil, nil, errors.Errorf("layer %d has no tensors", i+1)
		}
		wm, err := weightDataToDense(lw.Weight)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "layer %d weight", i+1)
		}
		bm, err := weightDataToDense(lw.Bias)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "layer %d bias", i+1)
		}
		params[i] = nn.LayerParams{W: wm, B: bm}
	}
	topology, err := nn.NewTopology(w.InputDim, layers)
	if err != nil {
		return nil, nil, err
	}
	p := nn.NewParameters(params)
	if err := p.Check(topology); err != nil {
		return nil, nil, err
	}
	return layers, p, nil
}
