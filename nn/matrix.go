package nn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Mul(m, n)
	return o
}

func apply(fn func(i, j int, v float64) float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func scale(s float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func multiply(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func add(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func subtract(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

// addColumn broadcasts the column vector b over every column of m.
func addColumn(m mat.Matrix, b mat.Matrix) *mat.Dense {
	return apply(func(i, _ int, v float64) float64 {
		return v + b.At(i, 0)
	}, m)
}

// rowSums returns the column vector of the row sums of m.
func rowSums(m *mat.Dense) *mat.Dense {
	r, _ := m.Dims()
	o := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		o.Set(i, 0, floats.Sum(m.RawRowView(i)))
	}
	return o
}

// Columns copies the columns [from, to) of m into a new matrix.
func Columns(m *mat.Dense, from, to int) *mat.Dense {
	r, _ := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, r, from, to))
}
