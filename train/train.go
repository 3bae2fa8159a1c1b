// Package train drives mini-batch training of an nn network: forward pass with dropout,
// backward pass, optimizer-mediated update and metric accumulation, with periodic
// validation against a held-out set.
package train

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"ffnet/metrics"
	"ffnet/nn"
	"ffnet/optim"
	"ffnet/utils"
)

// DefaultValidateEvery is the epoch period of validation reports.
const DefaultValidateEvery = 10

// ErrNaNCost is returned when StopOnNaN is set and a batch cost is NaN or infinite.
var ErrNaNCost = errors.New("batch cost is not finite")

// Config controls a training run.
type Config struct {
	Epochs    int
	BatchSize int

	// ValidateEvery is the epoch period of validation and reporting. Zero means
	// DefaultValidateEvery, a negative value disables reporting.
	ValidateEvery int

	// Reporter receives the validation records. Nil means LogReporter.
	Reporter Reporter

	// OnEpoch, if set, is called after every epoch.
	OnEpoch func(epoch int)

	// Rand is the dropout source. Nil uses the global math/rand/v2 source.
	Rand *rand.Rand

	// Initializer builds the initial parameters. Nil means nn.HeInitializer on Rand.
	Initializer nn.Initializer

	// StopOnNaN aborts the run with ErrNaNCost on a non-finite batch cost.
	StopOnNaN bool

	// GlobalStep hands the optimizers a monotonic step count starting at 1 instead of
	// epoch·j + j.
	GlobalStep bool

	// Timing, if set, accumulates the time spent in each phase.
	Timing *utils.TimingStats
}

// Result is the outcome of a run, scored on the full training set.
type Result struct {
	Parameters  *nn.Parameters
	Predictions *mat.Dense
	Cost        float64
	F1          float64
}

// State is the phase of a Trainer.
type State int

const (
	Idle State = iota
	Running
	Validating
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Validating:
		return "validating"
	case Done:
		return "done"
	}
	return "unknown"
}

// Trainer owns the parameters and optimizer state of a single training run.
type Trainer struct {
	cfg      Config
	topology nn.Topology
	params   *nn.Parameters
	bank     *optim.Bank
	state    State
	epoch    int
	stats    *utils.TimingStats
}

// New validates the configuration and topology, and initializes the parameters for
// inputs of inputDim features and sampleCount samples.
func New(cfg Config, layers []nn.Layer, inputDim, sampleCount int) (*Trainer, error) {
	if cfg.Epochs < 0 {
		return nil, errors.Errorf("epochs must not be negative, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ValidateEvery == 0 {
		cfg.ValidateEvery = DefaultValidateEvery
	}
	if cfg.Reporter == nil {
		cfg.Reporter = LogReporter{}
	}
	if cfg.Initializer == nil {
		he := nn.HeInitializer{}
		if cfg.Rand != nil {
			he.Src = cfg.Rand
		}
		cfg.Initializer = he
	}
	stats := cfg.Timing
	if stats == nil {
		stats = &utils.TimingStats{}
	}

	topology, err := nn.NewTopology(inputDim, layers)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid topology")
	}
	start := time.Now()
	params, err := nn.Initialize(topology, sampleCount, cfg.Initializer)
	if err != nil {
		return nil, err
	}
	utils.Since(&stats.ModelInitTime, start)

	return &Trainer{
		cfg:      cfg,
		topology: topology,
		params:   params,
		bank:     optim.NewBank(topology.OptimizerConfigs()),
		stats:    stats,
	}, nil
}

// State returns the current phase.
func (t *Trainer) State() State { return t.state }

// Epoch returns the epoch being run, or the number run once Done.
func (t *Trainer) Epoch() int { return t.epoch }

// Parameters returns the live parameters.
func (t *Trainer) Parameters() *nn.Parameters { return t.params }

// Topology returns the validated topology.
func (t *Trainer) Topology() nn.Topology { return t.topology }

// Iterations is the number of batches run per epoch: max(ceil(m/batchSize) - 1, 1).
// The last, possibly short, batch is never trained on.
func Iterations(m, batchSize int) int {
	n := (m+batchSize-1)/batchSize - 1
	if n < 1 {
		return 1
	}
	return n
}

// Run trains on x (features × samples) and y (1 × samples) and validates on
// xDev/yDev, which may both be nil.
func (t *Trainer) Run(x, y, xDev, yDev *mat.Dense) (*Result, error) {
	if t.state != Idle {
		return nil, errors.Errorf("trainer is %s, a run needs an idle trainer", t.state)
	}
	if err := t.checkData(x, y, "training"); err != nil {
		return nil, err
	}
	if (xDev == nil) != (yDev == nil) {
		return nil, errors.New("validation features and labels must be given together")
	}
	if xDev != nil {
		if err := t.checkData(xDev, yDev, "validation"); err != nil {
			return nil, err
		}
	}

	begin := time.Now()
	defer utils.Since(&t.stats.TotalTime, begin)

	_, m := x.Dims()
	L := t.topology.Len()
	finalLambd := t.topology.Layer(L).Lambd
	iterations := Iterations(m, t.cfg.BatchSize)
	klog.V(2).Infof("training on %d samples: %d batches of %d per epoch", m, iterations, t.cfg.BatchSize)

	t.state = Running
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.epoch = epoch
		cost, f1 := 0.0, 0.0
		for j := 0; j < iterations; j++ {
			lo, hi := j*t.cfg.BatchSize, min((j+1)*t.cfg.BatchSize, m)
			xb, yb := nn.Columns(x, lo, hi), nn.Columns(y, lo, hi)

			step := epoch*j + j
			if t.cfg.GlobalStep {
				step = epoch*iterations + j + 1
			}
			batchCost, batchF1, err := t.step(xb, yb, epoch, step, finalLambd)
			if err != nil {
				t.state = Done
				return nil, errors.WithMessagef(err, "epoch %d, batch %d", epoch, j)
			}
			cost += batchCost
			f1 += batchF1
		}

		if t.cfg.ValidateEvery > 0 && epoch%t.cfg.ValidateEvery == 0 {
			t.state = Validating
			rec := Record{
				Epoch:  epoch,
				Epochs: t.cfg.Epochs,
				Cost:   cost / float64(iterations),
				F1:     f1 / float64(iterations),
			}
			if xDev != nil {
				start := time.Now()
				devPred, err := Predict(xDev, t.params, t.topology.Layers())
				if err != nil {
					t.state = Done
					return nil, err
				}
				rec.Validated = true
				rec.ValidationCost = metrics.Cost(devPred, yDev, t.params, 0, L)
				rec.ValidationF1 = metrics.F1(devPred, yDev)
				utils.Since(&t.stats.ValidationTime, start)
			}
			t.cfg.Reporter.Report(rec)
			t.state = Running
		}
		if t.cfg.OnEpoch != nil {
			t.cfg.OnEpoch(epoch)
		}
	}

	predictions, err := Predict(x, t.params, t.topology.Layers())
	t.state = Done
	t.epoch = t.cfg.Epochs
	if err != nil {
		return nil, err
	}
	return &Result{
		Parameters:  t.params,
		Predictions: predictions,
		Cost:        metrics.Cost(predictions, y, t.params, finalLambd, L),
		F1:          metrics.F1(predictions, y),
	}, nil
}

// step runs forward, backward and update on one batch and scores the batch output.
func (t *Trainer) step(xb, yb *mat.Dense, epoch, step int, lambd float64) (cost, f1 float64, err error) {
	start := time.Now()
	cache, err := nn.Forward(t.params, xb, t.topology, true, t.cfg.Rand)
	if err != nil {
		return 0, 0, err
	}
	utils.Since(&t.stats.ForwardPassTime, start)

	start = time.Now()
	grads, err := nn.Backward(t.params, cache, t.topology, yb)
	if err != nil {
		return 0, 0, err
	}
	utils.Since(&t.stats.BackwardPassTime, start)

	start = time.Now()
	nn.Update(t.params, cache, grads, t.topology, t.bank, epoch, step)
	utils.Since(&t.stats.UpdateTime, start)

	start = time.Now()
	out := cache.Output()
	cost = metrics.Cost(out, yb, t.params, lambd, t.topology.Len())
	f1 = metrics.F1(out, yb)
	utils.Since(&t.stats.LossComputationTime, start)
	t.stats.Steps++

	if t.cfg.StopOnNaN && (math.IsNaN(cost) || math.IsInf(cost, 0)) {
		return cost, f1, errors.Wrapf(ErrNaNCost, "cost %v, training interrupted", cost)
	}
	return cost, f1, nil
}

func (t *Trainer) checkData(x, y *mat.Dense, name string) error {
	if x == nil || y == nil {
		return errors.Errorf("%s features and labels are required", name)
	}
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	switch {
	case xr != t.topology.InputDim():
		return errors.Wrapf(nn.ErrShape, "%s features have %d rows, the network takes %d", name, xr, t.topology.InputDim())
	case yr != t.topology.Width(t.topology.Len()):
		return errors.Wrapf(nn.ErrShape, "%s labels have %d rows, the output layer has %d units", name, yr, t.topology.Width(t.topology.Len()))
	case xc != yc:
		return errors.Wrapf(nn.ErrShape, "%s set has %d feature columns and %d label columns", name, xc, yc)
	}
	return nil
}

// Train initializes a network for x and trains it; see Trainer.Run.
func Train(x, y, xDev, yDev *mat.Dense, cfg Config, layers []nn.Layer) (*Result, error) {
	if x == nil || y == nil {
		return nil, errors.New("training features and labels are required")
	}
	xr, m := x.Dims()
	t, err := New(cfg, layers, xr, m)
	if err != nil {
		return nil, err
	}
	return t.Run(x, y, xDev, yDev)
}

// Predict runs the network on x without dropout and returns the output probabilities.
func Predict(x *mat.Dense, p *nn.Parameters, layers []nn.Layer) (*mat.Dense, error) {
	xr, _ := x.Dims()
	topology, err := nn.NewTopology(xr, layers)
	if err != nil {
		return nil, err
	}
	if err := p.Check(topology); err != nil {
		return nil, err
	}
	cache, err := nn.Forward(p, x, topology, false, nil)
	if err != nil {
		return nil, err
	}
	return cache.Output(), nil
}
