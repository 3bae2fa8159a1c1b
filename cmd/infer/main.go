// ffnet-infer: scores a CSV with saved weights
//
// Usage:
//
//	ffnet-infer --weights=model.json --input=test.csv [--predictions=out.csv]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"ffnet/dataset"
	"ffnet/metrics"
	"ffnet/train"
	"ffnet/utils"
)

var (
	weightsFile     = flag.String("weights", "", "Weights JSON file written by ffnet-train")
	inputFile       = flag.String("input", "", "Input CSV with a header row; --demo data when empty")
	label           = flag.String("label", "", "Label column (default: last column)")
	demo            = flag.String("demo", "xor", "Synthetic data when --input is empty: xor")
	predictionsFile = flag.String("predictions", "", "Write one probability per line to this file")
	verbose         = flag.Bool("verbose", true, "Verbose output")
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
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       ffnet Inference                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	if *weightsFile == "" {
		return errors.New("--weights is required")
	}
	weights, err := utils.LoadWeights(*weightsFile)
	if err != nil {
		return err
	}
	layers, params, err := utils.ToParameters(weights)
	if err != nil {
		return errors.WithMessagef(err, "weights %s", *weightsFile)
	}
	fmt.Printf("Loaded %d layers, %s parameters\n", len(layers), humanize.Comma(int64(params.Count())))

	var data *dataset.Dataset
	switch {
	case *inputFile != "":
		if data, err = dataset.ReadCSVFile(*inputFile, *label); err != nil {
			return err
		}
	case *demo == "xor":
		data = dataset.XOR()
	default:
		return errors.Errorf("unknown demo %q", *demo)
	}
	if weights.Mean != nil {
		if err := (dataset.Scaler{Mean: weights.Mean, Std: weights.Std}).Apply(data); err != nil {
			return err
		}
	}
	fmt.Printf("Samples: %s, features: %d\n", humanize.Comma(int64(data.Len())), data.Dim())

	start := time.Now()
	predictions, err := train.Predict(data.X, params, layers)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	lambd := layers[len(layers)-1].Lambd
	counts := metrics.Count(predictions, data.Y)
	fmt.Printf("\nTime:      %.4fs\n", elapsed.Seconds())
	fmt.Printf("Cost:      %.6f\n", metrics.Cost(predictions, data.Y, params, lambd, len(layers)))
	fmt.Printf("Precision: %.2f%%\n", counts.Precision())
	fmt.Printf("Recall:    %.2f%%\n", counts.Recall())
	fmt.Printf("F1:        %.2f%%\n", counts.F1())

	if *predictionsFile != "" {
		f, err := os.Create(*predictionsFile)
		if err != nil {
			return errors.Wrap(err, "creating predictions file")
		}
		defer f.Close()
		_, m := predictions.Dims()
		for j := 0; j < m; j++ {
			if _, err := fmt.Fprintf(f, "%.6f\n", predictions.At(0, j)); err != nil {
				return errors.Wrap(err, "writing predictions")
			}
		}
		fmt.Printf("\nWrote %s predictions to %s\n", humanize.Comma(int64(m)), *predictionsFile)
	} else if utils.Verbose {
		_, m := predictions.Dims()
		for j := 0; j < min(m, 10); j++ {
			fmt.Fprintf(utils.Output, "  sample %d: p=%.4f label=%g\n", j, predictions.At(0, j), data.Y.At(0, j))
		}
	}
	return nil
}
