// ffnet-train: mini-batch trainer for feed-forward binary classifiers
//
// Usage:
//
//	ffnet-train --data=train.csv --layers=16:relu:0.9,8:relu,1:sigmoid --epochs=100 --optimizer=adam
//	ffnet-train --demo=xor --layers=2:relu,1:sigmoid --lr=0.5 --epochs=3000
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"ffnet/dataset"
	"ffnet/metrics"
	"ffnet/nn"
	"ffnet/train"
	"ffnet/utils"
)

var (
	layersFlag    = flag.String("layers", "8:relu,1:sigmoid", "Layers as units:activation[:keep_prob[:lambd]], comma separated")
	dataPath      = flag.String("data", "", "Training CSV with a header row")
	devPath       = flag.String("dev", "", "Validation CSV; overrides --dev-fraction")
	label         = flag.String("label", "", "Label column (default: last column)")
	devFraction   = flag.Float64("dev-fraction", 0, "Fraction of the training data held out for validation")
	standardize   = flag.Bool("standardize", true, "Standardize features with the training mean and std-dev")
	demo          = flag.String("demo", "blobs", "Synthetic data when --data is empty: xor, blobs")
	samples       = flag.Int("samples", 200, "Number of synthetic samples for --demo=blobs")
	batchSize     = flag.Int("batch", 32, "Mini-batch size")
	epochs        = flag.Int("epochs", 100, "Number of training epochs")
	learningRate  = flag.Float64("lr", 0.01, "Learning rate")
	decay         = flag.Float64("decay", 0, "Inverse time decay of the learning rate per epoch")
	optimizer     = flag.String("optimizer", "sgd", "Optimizer: sgd, momentum, rmsprop, adam")
	initializer   = flag.String("init", "he", "Weight initializer: he, uniform")
	beta1         = flag.Float64("beta1", 0.9, "First-moment coefficient")
	beta2         = flag.Float64("beta2", 0.999, "Second-moment coefficient")
	seed          = flag.Uint64("seed", 42, "Random seed")
	validateEvery = flag.Int("validate-every", train.DefaultValidateEvery, "Epochs between validation reports")
	stopOnNaN     = flag.Bool("stop-on-nan", false, "Abort when a batch cost is NaN or infinite")
	globalStep    = flag.Bool("global-step", false, "Use a monotonic optimizer step counter")
	progress      = flag.Bool("progress", true, "Show a progress bar")
	verbose       = flag.Bool("verbose", true, "Verbose output")
	outputFile    = flag.String("output", "", "Output weights file (JSON)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()
	utils.Verbose = *verbose

	if err := run(); err != nil {
		klog.Errorf("%+v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run() error {
	arch, err := utils.ParseLayers(*layersFlag)
	if err != nil {
		return err
	}
	cfg := &utils.Config{
		Architecture:  arch,
		DataPath:      *dataPath,
		DevPath:       *devPath,
		Label:         *label,
		DevFraction:   *devFraction,
		Standardize:   *standardize,
		BatchSize:     *batchSize,
		Epochs:        *epochs,
		LearningRate:  *learningRate,
		Decay:         *decay,
		Optimizer:     *optimizer,
		Initializer:   *initializer,
		Beta1:         *beta1,
		Beta2:         *beta2,
		Seed:          *seed,
		ValidateEvery: *validateEvery,
		StopOnNaN:     *stopOnNaN,
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	layers, err := cfg.Layers()
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	weightInit, err := nn.ParseInitializer(cfg.Initializer, rng)
	if err != nil {
		return err
	}

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       ffnet Trainer                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Layers:        %s\n", utils.FormatLayers(cfg.Architecture))
	fmt.Printf("  Epochs:        %d\n", cfg.Epochs)
	fmt.Printf("  Batch size:    %d\n", cfg.BatchSize)
	fmt.Printf("  Learning Rate: %.4f (decay %g)\n", cfg.LearningRate, cfg.Decay)
	fmt.Printf("  Optimizer:     %s\n", cfg.Optimizer)
	fmt.Printf("  Initializer:   %s\n", cfg.Initializer)
	fmt.Println()

	stats := &utils.TimingStats{}
	start := time.Now()
	trainSet, devSet, err := loadData(cfg, rng)
	if err != nil {
		return err
	}
	var scaler *dataset.Scaler
	if cfg.Standardize {
		s, err := trainSet.Standardize()
		if err != nil {
			return errors.WithMessage(err, "standardizing training set")
		}
		scaler = &s
		if devSet != nil {
			if err := s.Apply(devSet); err != nil {
				return errors.WithMessage(err, "standardizing dev set")
			}
		}
	}
	utils.Since(&stats.DataLoadingTime, start)
	fmt.Printf("Training samples: %s, features: %d\n", humanize.Comma(int64(trainSet.Len())), trainSet.Dim())
	if devSet != nil {
		fmt.Printf("Dev samples:      %s\n", humanize.Comma(int64(devSet.Len())))
	}

	tcfg := train.Config{
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		ValidateEvery: cfg.ValidateEvery,
		Rand:          rng,
		Initializer:   weightInit,
		StopOnNaN:     cfg.StopOnNaN,
		GlobalStep:    *globalStep,
		Timing:        stats,
	}
	var bar *progressbar.ProgressBar
	if *progress {
		bar = progressbar.NewOptions(cfg.Epochs,
			progressbar.OptionSetDescription("training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("epochs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish())
		tcfg.OnEpoch = func(int) { _ = bar.Add(1) }
		// records are printed once the bar finishes
		tcfg.Reporter = &train.History{}
	}

	trainer, err := train.New(tcfg, layers, trainSet.Dim(), trainSet.Len())
	if err != nil {
		return err
	}
	fmt.Printf("Model: %d layers, %s parameters\n\n", trainer.Topology().Len(),
		humanize.Comma(int64(trainer.Parameters().Count())))

	xDev, yDev := devMatrices(devSet)
	res, err := trainer.Run(trainSet.X, trainSet.Y, xDev, yDev)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}
	if h, ok := tcfg.Reporter.(*train.History); ok {
		for _, r := range h.Records {
			fmt.Println(r)
		}
	}

	fmt.Printf("\nTraining complete! Total time: %.2fs\n", stats.TotalTime.Seconds())
	fmt.Printf("Train cost: %.6f  F1: %.2f%%\n", res.Cost, res.F1)
	if devSet != nil {
		devPred, err := train.Predict(devSet.X, res.Parameters, layers)
		if err != nil {
			return err
		}
		fmt.Printf("Dev cost:   %.6f  F1: %.2f%%\n",
			metrics.Cost(devPred, devSet.Y, res.Parameters, 0, len(layers)), metrics.F1(devPred, devSet.Y))
	}
	utils.PrintTimingStats(stats)

	if *outputFile != "" {
		weights := utils.FromParameters(trainer.Topology(), res.Parameters)
		if scaler != nil {
			weights.Mean, weights.Std = scaler.Mean, scaler.Std
		}
		if err := utils.SaveWeights(*outputFile, weights); err != nil {
			return err
		}
		fmt.Printf("\nSaved weights to %s\n", *outputFile)
	}
	return nil
}

func loadData(cfg *utils.Config, rng *rand.Rand) (trainSet, devSet *dataset.Dataset, err error) {
	var all *dataset.Dataset
	switch {
	case cfg.DataPath != "":
		if all, err = dataset.ReadCSVFile(cfg.DataPath, cfg.Label); err != nil {
			return nil, nil, err
		}
	case *demo == "xor":
		all = dataset.XOR()
	case *demo == "blobs":
		all = dataset.Blobs(*samples, rng)
	default:
		return nil, nil, errors.Errorf("unknown demo %q", *demo)
	}

	if cfg.DevPath != "" {
		devSet, err = dataset.ReadCSVFile(cfg.DevPath, cfg.Label)
		return all, devSet, err
	}
	return all.Split(cfg.DevFraction)
}

func devMatrices(d *dataset.Dataset) (x, y *mat.Dense) {
	if d == nil {
		return nil, nil
	}
	return d.X, d.Y
}
