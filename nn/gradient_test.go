package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ffnet/metrics"
	"ffnet/nn"
)

// flatten lays out W_1, b_1, W_2, b_2, ... row by row.
func flatten(p *nn.Parameters) []float64 {
	var out []float64
	for i := 1; i <= p.Len(); i++ {
		out = append(out, mat.DenseCopyOf(p.W(i)).RawMatrix().Data...)
		out = append(out, mat.DenseCopyOf(p.B(i)).RawMatrix().Data...)
	}
	return out
}

func unflatten(theta []float64, like *nn.Parameters) *nn.Parameters {
	layers := make([]nn.LayerParams, like.Len())
	off := 0
	for i := 1; i <= like.Len(); i++ {
		wr, wc := like.W(i).Dims()
		w := mat.NewDense(wr, wc, append([]float64(nil), theta[off:off+wr*wc]...))
		off += wr * wc
		b := mat.NewDense(wr, 1, append([]float64(nil), theta[off:off+wr]...))
		off += wr
		layers[i-1] = nn.LayerParams{W: w, B: b}
	}
	return nn.NewParameters(layers)
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 12))
	top, err := nn.NewTopology(3, []nn.Layer{
		{Units: 4, Activation: nn.ReLU{}},
		{Units: 3, Activation: nn.ReLU{}},
		{Units: 1, Activation: nn.Sigmoid{}},
	})
	require.NoError(t, err)
	p, err := nn.Initialize(top, 5, nn.HeInitializer{Src: rng})
	require.NoError(t, err)

	const m = 5
	xData := make([]float64, 3*m)
	for i := range xData {
		xData[i] = rng.NormFloat64()
	}
	x := mat.NewDense(3, m, xData)
	y := mat.NewDense(1, m, []float64{1, 0, 1, 1, 0})

	cost := func(theta []float64) float64 {
		c, err := nn.Forward(unflatten(theta, p), x, top, false, nil)
		if err != nil {
			panic(err)
		}
		return metrics.LogLoss(y, c.Output())
	}

	c, err := nn.Forward(p, x, top, false, nil)
	require.NoError(t, err)
	g, err := nn.Backward(p, c, top, y)
	require.NoError(t, err)
	var analytic []float64
	for i := 1; i <= top.Len(); i++ {
		dW, db := nn.WeightGradients(c, g, i)
		analytic = append(analytic, dW.RawMatrix().Data...)
		analytic = append(analytic, db.RawMatrix().Data...)
	}

	theta := flatten(p)
	require.Len(t, analytic, len(theta))
	numeric := fd.Gradient(nil, cost, theta, &fd.Settings{Formula: fd.Central})

	diff := make([]float64, len(theta))
	floats.SubTo(diff, analytic, numeric)
	denom := floats.Norm(analytic, 2) + floats.Norm(numeric, 2)
	if denom < 1e-12 {
		denom = 1e-12
	}
	rel := floats.Norm(diff, 2) / denom
	require.Less(t, rel, 1e-5, "analytic %v\nnumeric %v", analytic, numeric)
}
