// Package tensor is a flat, serialisable n-D array used to move gonum matrices in and
// out of files.
package tensor

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a row-major n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zeroed Tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Size(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from a copy of data.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// Size is the number of elements a shape holds.
func Size(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// FromDense copies m into a rows×cols tensor.
func FromDense(m mat.Matrix) *Tensor {
	r, c := m.Dims()
	t := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Data[i*c+j] = m.At(i, j)
		}
	}
	return t
}

// Dense copies t into a new matrix. A 1-D tensor becomes a column vector.
func (t *Tensor) Dense() (*mat.Dense, error) {
	var r, c int
	switch len(t.Shape) {
	case 1:
		r, c = t.Shape[0], 1
	case 2:
		r, c = t.Shape[0], t.Shape[1]
	default:
		return nil, errors.Errorf("tensor of shape %v is not a matrix", t.Shape)
	}
	if r <= 0 || c <= 0 {
		return nil, errors.Errorf("tensor of shape %v is empty", t.Shape)
	}
	if len(t.Data) != r*c {
		return nil, errors.Errorf("tensor of shape %v holds %d elements", t.Shape, len(t.Data))
	}
	return mat.NewDense(r, c, append([]float64(nil), t.Data...)), nil
}

// offset computes the linear index of indices, panicking like a slice access would.
func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx, stride := 0, 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}
