package train

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"ffnet/nn"
	"ffnet/optim"
	"ffnet/utils"
)

func xorData() (x, y *mat.Dense) {
	x = mat.NewDense(2, 4, []float64{
		0, 0, 1, 1,
		0, 1, 0, 1,
	})
	y = mat.NewDense(1, 4, []float64{0, 1, 1, 0})
	return x, y
}

// fixed hands out a preset tensor pair per layer, in order.
func fixed(params ...nn.LayerParams) nn.Initializer {
	next := 0
	return nn.InitializerFunc(func(_, _, _ int) (*mat.Dense, *mat.Dense) {
		p := params[next]
		next++
		return mat.DenseCopyOf(p.W), mat.DenseCopyOf(p.B)
	})
}

// blobs returns two separable clusters around (-2,-2) and (2,2).
func blobs(n int, seed uint64) (x, y *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	x = mat.NewDense(2, n, nil)
	y = mat.NewDense(1, n, nil)
	for j := 0; j < n; j++ {
		center := -2.0
		if j%2 == 1 {
			center = 2
			y.Set(0, j, 1)
		}
		x.Set(0, j, center+0.5*rng.NormFloat64())
		x.Set(1, j, center+0.5*rng.NormFloat64())
	}
	return x, y
}

func TestIterations(t *testing.T) {
	for _, tc := range []struct{ m, bs, want int }{
		{10, 4, 2},
		{8, 4, 1},
		{4, 4, 1},
		{3, 4, 1},
		{100, 10, 9},
		{101, 10, 10},
	} {
		assert.Equal(t, tc.want, Iterations(tc.m, tc.bs), "m=%d bs=%d", tc.m, tc.bs)
	}
}

func TestTrainXOR(t *testing.T) {
	x, y := xorData()
	layers := []nn.Layer{
		{Units: 2, Activation: nn.ReLU{}, LearningRate: optim.Constant(0.5)},
		{Units: 1, Activation: nn.Sigmoid{}, LearningRate: optim.Constant(0.5)},
	}
	hist := &History{}
	cfg := Config{
		Epochs:      5000,
		BatchSize:   4,
		Reporter:    hist,
		Initializer: nn.HeInitializer{Src: rand.NewPCG(0, 0)},
	}
	res, err := Train(x, y, nil, nil, cfg, layers)
	require.NoError(t, err)
	assert.Less(t, res.Cost, 0.1)
	assert.Greater(t, res.F1, 90.0)

	require.NotEmpty(t, hist.Records)
	require.Equal(t, 0, hist.Records[0].Epoch)
	assert.Greater(t, hist.Records[0].Cost, res.Cost)
}

func TestTrainReducesCost(t *testing.T) {
	x, y := blobs(40, 3)
	layers := []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}, LearningRate: optim.Constant(0.1)}}
	zero := nn.InitializerFunc(func(in, out, _ int) (*mat.Dense, *mat.Dense) {
		return mat.NewDense(out, in, nil), mat.NewDense(out, 1, nil)
	})
	cfg := Config{Epochs: 1000, BatchSize: 40, Initializer: zero, Reporter: &History{}}

	res, err := Train(x, y, nil, nil, cfg, layers)
	require.NoError(t, err)
	assert.Less(t, res.Cost, math.Log(2))
	assert.InDelta(t, 100, res.F1, 1e-9)
}

func TestDefaultStepCounter(t *testing.T) {
	x, y := blobs(12, 11)
	layers := []nn.Layer{{
		Units: 1, Activation: nn.Sigmoid{},
		LearningRate: optim.Constant(0.1),
		Optimization: &optim.Config{Kind: optim.Momentum},
	}}
	w0 := mat.NewDense(1, 2, []float64{0.3, -0.2})
	b0 := mat.NewDense(1, 1, []float64{0.1})

	// Iterations(12, 4) = 2, so each epoch runs batches j=0 and j=1 with step epoch·j + j.
	cfg := Config{
		Epochs:      2,
		BatchSize:   4,
		Reporter:    &History{},
		Initializer: fixed(nn.LayerParams{W: w0, B: b0}),
	}
	res, err := Train(x, y, nil, nil, cfg, layers)
	require.NoError(t, err)

	top, err := nn.NewTopology(2, layers)
	require.NoError(t, err)
	replay := func(steps []int) (w, b *mat.Dense) {
		w, b = mat.DenseCopyOf(w0), mat.DenseCopyOf(b0)
		strategy := optim.New(&optim.Config{Kind: optim.Momentum})
		k := 0
		for epoch := 0; epoch < 2; epoch++ {
			for j := 0; j < 2; j++ {
				xb, yb := nn.Columns(x, 4*j, 4*j+4), nn.Columns(y, 4*j, 4*j+4)
				p := nn.NewParameters([]nn.LayerParams{{W: w, B: b}})
				c, err := nn.Forward(p, xb, top, false, nil)
				require.NoError(t, err)
				g, err := nn.Backward(p, c, top, yb)
				require.NoError(t, err)
				dW, db := nn.WeightGradients(c, g, 1)
				uW, ub := strategy.Direction(dW, db, steps[k])
				k++

				var sW, sb mat.Dense
				sW.Scale(0.1, uW)
				sb.Scale(0.1, ub)
				w.Sub(w, &sW)
				b.Sub(b, &sb)
			}
		}
		return w, b
	}

	w, b := replay([]int{0, 1, 0, 2})
	assert.True(t, mat.EqualApprox(w, res.Parameters.W(1), 1e-12), "W = %v, want %v", mat.Formatted(res.Parameters.W(1)), mat.Formatted(w))
	assert.True(t, mat.EqualApprox(b, res.Parameters.B(1), 1e-12), "b = %v, want %v", mat.Formatted(res.Parameters.B(1)), mat.Formatted(b))

	monotonic, _ := replay([]int{1, 2, 3, 4})
	assert.False(t, mat.EqualApprox(monotonic, res.Parameters.W(1), 1e-9))
}

func TestTrainOptimizers(t *testing.T) {
	x, y := blobs(64, 5)
	for _, kind := range []optim.Kind{optim.SGD, optim.Momentum, optim.RMSProp, optim.Adam} {
		t.Run(kind.String(), func(t *testing.T) {
			layers := []nn.Layer{
				{Units: 4, Activation: nn.ReLU{}, Optimization: &optim.Config{Kind: kind}, LearningRate: optim.Constant(0.05)},
				{Units: 1, Activation: nn.Sigmoid{}, Optimization: &optim.Config{Kind: kind}, LearningRate: optim.Constant(0.05)},
			}
			cfg := Config{
				Epochs:     200,
				BatchSize:  16,
				GlobalStep: true,
				Reporter:   &History{},
				Rand:       rand.New(rand.NewPCG(1, 2)),
			}
			res, err := Train(x, y, nil, nil, cfg, layers)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(res.Cost))
			assert.Greater(t, res.F1, 90.0)
		})
	}
}

func TestValidationReports(t *testing.T) {
	x, y := blobs(30, 7)
	xDev, yDev := blobs(10, 8)
	layers := []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}}

	hist := &History{}
	var epochs []int
	cfg := Config{
		Epochs:    25,
		BatchSize: 10,
		Reporter:  hist,
		OnEpoch:   func(e int) { epochs = append(epochs, e) },
		Rand:      rand.New(rand.NewPCG(1, 1)),
	}
	_, err := Train(x, y, xDev, yDev, cfg, layers)
	require.NoError(t, err)

	require.Len(t, hist.Records, 3)
	for i, r := range hist.Records {
		assert.Equal(t, i*10, r.Epoch)
		assert.Equal(t, 25, r.Epochs)
		assert.True(t, r.Validated)
		assert.False(t, math.IsNaN(r.ValidationCost))
		assert.GreaterOrEqual(t, r.ValidationF1, 0.0)
		assert.LessOrEqual(t, r.ValidationF1, 100.0)
	}
	assert.Len(t, epochs, 25)
}

func TestValidationWithoutDevSet(t *testing.T) {
	x, y := blobs(20, 9)
	hist := &History{}
	cfg := Config{Epochs: 5, BatchSize: 5, ValidateEvery: 2, Reporter: hist}
	_, err := Train(x, y, nil, nil, cfg, []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}})
	require.NoError(t, err)

	require.Len(t, hist.Records, 3)
	for _, r := range hist.Records {
		assert.False(t, r.Validated)
	}
}

func TestReportingDisabled(t *testing.T) {
	x, y := blobs(20, 9)
	hist := &History{}
	cfg := Config{Epochs: 5, BatchSize: 5, ValidateEvery: -1, Reporter: hist}
	_, err := Train(x, y, nil, nil, cfg, []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}})
	require.NoError(t, err)
	assert.Empty(t, hist.Records)
}

func TestTrainerState(t *testing.T) {
	x, y := blobs(12, 1)
	stats := &utils.TimingStats{}
	tr, err := New(Config{Epochs: 3, BatchSize: 4, Reporter: &History{}, Timing: stats},
		[]nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}}, 2, 12)
	require.NoError(t, err)
	assert.Equal(t, Idle, tr.State())

	res, err := tr.Run(x, y, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Done, tr.State())
	assert.Equal(t, 3, tr.Epoch())
	assert.Same(t, tr.Parameters(), res.Parameters)
	// Iterations(12, 4) = 2 batches over 3 epochs
	assert.Equal(t, 6, stats.Steps)
	assert.Greater(t, int64(stats.TotalTime), int64(0))

	_, err = tr.Run(x, y, nil, nil)
	assert.Error(t, err)
}

func TestDropoutIsReproducible(t *testing.T) {
	x, y := blobs(24, 4)
	layers := []nn.Layer{
		{Units: 8, Activation: nn.ReLU{}, KeepProb: 0.7},
		{Units: 1, Activation: nn.Sigmoid{}},
	}
	run := func() *Result {
		cfg := Config{Epochs: 20, BatchSize: 8, Reporter: &History{}, Rand: rand.New(rand.NewPCG(10, 20))}
		res, err := Train(x, y, nil, nil, cfg, layers)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	for i := 1; i <= a.Parameters.Len(); i++ {
		assert.True(t, mat.Equal(a.Parameters.W(i), b.Parameters.W(i)), "W%d", i)
	}
	assert.Equal(t, a.Cost, b.Cost)
}

func TestGlobalStepTrains(t *testing.T) {
	x, y := blobs(32, 6)
	layers := []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}, Optimization: &optim.Config{Kind: optim.Adam}, LearningRate: optim.Constant(0.05)}}
	cfg := Config{Epochs: 100, BatchSize: 8, GlobalStep: true, Reporter: &History{}, Rand: rand.New(rand.NewPCG(3, 3))}
	res, err := Train(x, y, nil, nil, cfg, layers)
	require.NoError(t, err)
	assert.Greater(t, res.F1, 90.0)
}

func TestStopOnNaN(t *testing.T) {
	x, y := xorData()
	poisoned := nn.InitializerFunc(func(in, out, _ int) (*mat.Dense, *mat.Dense) {
		w := mat.NewDense(out, in, nil)
		w.Set(0, 0, math.NaN())
		return w, mat.NewDense(out, 1, nil)
	})
	cfg := Config{Epochs: 5, BatchSize: 4, StopOnNaN: true, Initializer: poisoned, Reporter: &History{}}
	_, err := Train(x, y, nil, nil, cfg, []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNaNCost))

	cfg.StopOnNaN = false
	res, err := Train(x, y, nil, nil, cfg, []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Cost))
}

func TestTrainRejectsBadInput(t *testing.T) {
	x, y := xorData()
	layers := []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}}
	tr, err := New(Config{Epochs: 1, BatchSize: 2}, layers, 3, 4)
	require.NoError(t, err)
	_, err = tr.Run(x, y, nil, nil)
	assert.ErrorIs(t, err, nn.ErrShape)

	_, err = Train(x, mat.NewDense(1, 3, nil), nil, nil, Config{Epochs: 1, BatchSize: 2}, layers)
	assert.ErrorIs(t, err, nn.ErrShape)

	_, err = Train(x, y, x, nil, Config{Epochs: 1, BatchSize: 2}, layers)
	assert.Error(t, err)

	_, err = Train(x, y, nil, nil, Config{Epochs: 1}, layers)
	assert.Error(t, err)

	_, err = Train(x, y, nil, nil, Config{Epochs: 1, BatchSize: 2}, nil)
	assert.ErrorIs(t, err, nn.ErrEmptyTopology)
}

func TestPredictChecksParameters(t *testing.T) {
	x, _ := xorData()
	layers := []nn.Layer{{Units: 1, Activation: nn.Sigmoid{}}}
	p := nn.NewParameters([]nn.LayerParams{{W: mat.NewDense(1, 3, nil), B: mat.NewDense(1, 1, nil)}})
	_, err := Predict(x, p, layers)
	assert.ErrorIs(t, err, nn.ErrShape)

	p = nn.NewParameters([]nn.LayerParams{{W: mat.NewDense(1, 2, nil), B: mat.NewDense(1, 1, nil)}})
	out, err := Predict(x, p, layers)
	require.NoError(t, err)
	for j := 0; j < 4; j++ {
		assert.Equal(t, 0.5, out.At(0, j))
	}
}

func TestWriterReporter(t *testing.T) {
	var buf bytes.Buffer
	Reporters{WriterReporter{W: &buf}, &History{}}.Report(Record{
		Epoch: 10, Epochs: 50, Cost: 0.25, F1: 80,
		Validated: true, ValidationCost: 0.5, ValidationF1: 75,
	})
	assert.Equal(t, "epoch 10/50: cost=0.250000 f1=80.00% dev_cost=0.500000 dev_f1=75.00%\n", buf.String())
}
