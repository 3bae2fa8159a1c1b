// Package metrics scores binary-classification predictions: cross-entropy cost with an
// L2 term, and precision, recall and F1 on a 0-100 scale.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"ffnet/nn"
)

// clip keeps probabilities away from 0 and 1 before taking logarithms.
const clip = 1e-15

// threshold separates positive from negative predictions.
const threshold = 0.5

// LogLoss is the mean binary cross-entropy of the predicted probabilities yHat against
// the labels y. Both are read element by element in row-major order and must hold the
// same number of elements; it panics with mat.ErrShape otherwise.
func LogLoss(y, yHat mat.Matrix) float64 {
	labels, probs := elements(y), elements(yHat)
	if len(labels) != len(probs) {
		panic(mat.ErrShape)
	}
	if len(labels) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i, p := range probs {
		p = math.Min(math.Max(p, clip), 1-clip)
		sum -= labels[i]*math.Log(p) + (1-labels[i])*math.Log(1-p)
	}
	return sum / float64(len(labels))
}

// Cost adds lambda·Σ‖W_i‖_F / (2m) to the log-loss, summing the Frobenius norms of
// the first numLayers weight matrices. m is the number of labelled samples.
func Cost(yHat, y mat.Matrix, p *nn.Parameters, lambda float64, numLayers int) float64 {
	_, m := y.Dims()
	regularization := 0.0
	for i := 1; i <= numLayers; i++ {
		regularization += mat.Norm(p.W(i), 2)
	}
	return LogLoss(y, yHat) + lambda*regularization/(2*float64(m))
}

// Counts is the confusion tally of a thresholded prediction.
type Counts struct {
	TruePositive, FalsePositive, FalseNegative float64
}

// Count thresholds yHat at 0.5. A prediction of exactly 0.5 is neither a positive
// nor a negative prediction.
func Count(yHat, y mat.Matrix) Counts {
	probs, labels := elements(yHat), elements(y)
	if len(labels) != len(probs) {
		panic(mat.ErrShape)
	}
	var c Counts
	for i, p := range probs {
		switch {
		case p > threshold && labels[i] == 1:
			c.TruePositive++
		case p > threshold && labels[i] == 0:
			c.FalsePositive++
		case p < threshold && labels[i] == 1:
			c.FalseNegative++
		}
	}
	return c
}

// Precision is 100·TP / max(1, TP+FP).
func (c Counts) Precision() float64 {
	return 100 * c.TruePositive / math.Max(1, c.TruePositive+c.FalsePositive)
}

// Recall is 100·TP / max(1, TP+FN).
func (c Counts) Recall() float64 {
	return 100 * c.TruePositive / math.Max(1, c.TruePositive+c.FalseNegative)
}

// F1 is 2·P·R / max(1, P+R) with P and R on the 0-100 scale.
func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	return 2 * p * r / math.Max(1, p+r)
}

func Precision(yHat, y mat.Matrix) float64 { return Count(yHat, y).Precision() }

func Recall(yHat, y mat.Matrix) float64 { return Count(yHat, y).Recall() }

func F1(yHat, y mat.Matrix) float64 { return Count(yHat, y).F1() }

// elements flattens m row by row.
func elements(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}
