package optim

import "math"

// Schedule maps a training-progress counter (the epoch index) to a learning rate.
type Schedule func(progress int) float64

// DefaultLearningRate is used by layers that set no schedule.
const DefaultLearningRate = 0.01

// Constant always returns lr.
func Constant(lr float64) Schedule {
	return func(int) float64 { return lr }
}

// ExponentialDecay returns lr·rate^progress.
func ExponentialDecay(lr, rate float64) Schedule {
	return func(progress int) float64 {
		return lr * math.Pow(rate, float64(progress))
	}
}

// InverseTimeDecay returns lr / (1 + k·progress).
func InverseTimeDecay(lr, k float64) Schedule {
	return func(progress int) float64 {
		return lr / (1 + k*float64(progress))
	}
}
