package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// plain is gradient descent: the update is the gradient itself.
type plain struct{}

func (plain) Kind() Kind { return SGD }

func (plain) Direction(dW, db *mat.Dense, _ int) (*mat.Dense, *mat.Dense) {
	return mat.DenseCopyOf(dW), mat.DenseCopyOf(db)
}

// momentum keeps first-moment averages v_dW, v_db.
type momentum struct {
	beta1  float64
	vW, vb []float64
}

func (m *momentum) Kind() Kind { return Momentum }

func (m *momentum) Direction(dW, db *mat.Dense, step int) (*mat.Dense, *mat.Dense) {
	c := BiasCorrection(m.beta1, step)
	return m.direction(&m.vW, dW, c), m.direction(&m.vb, db, c)
}

func (m *momentum) direction(v *[]float64, grad *mat.Dense, correction float64) *mat.Dense {
	g := raw(grad)
	firstMoment(v, g, m.beta1)
	out := make([]float64, len(g))
	floats.ScaleTo(out, 1/correction, *v)
	return like(grad, out)
}

// rmsprop keeps second-moment averages s_dW, s_db.
type rmsprop struct {
	beta2  float64
	sW, sb []float64
}

func (r *rmsprop) Kind() Kind { return RMSProp }

func (r *rmsprop) Direction(dW, db *mat.Dense, step int) (*mat.Dense, *mat.Dense) {
	c := BiasCorrection(r.beta2, step)
	return r.direction(&r.sW, dW, c), r.direction(&r.sb, db, c)
}

func (r *rmsprop) direction(s *[]float64, grad *mat.Dense, correction float64) *mat.Dense {
	g := raw(grad)
	secondMoment(s, g, r.beta2)
	out := make([]float64, len(g))
	for i, x := range g {
		out[i] = x / (math.Sqrt((*s)[i]/correction) + Epsilon)
	}
	return like(grad, out)
}

// adam combines both averages.
type adam struct {
	beta1, beta2 float64
	vW, vb       []float64
	sW, sb       []float64
}

func (a *adam) Kind() Kind { return Adam }

func (a *adam) Direction(dW, db *mat.Dense, step int) (*mat.Dense, *mat.Dense) {
	c1 := BiasCorrection(a.beta1, step)
	c2 := BiasCorrection(a.beta2, step)
	return a.direction(&a.vW, &a.sW, dW, c1, c2), a.direction(&a.vb, &a.sb, db, c1, c2)
}

func (a *adam) direction(v, s *[]float64, grad *mat.Dense, c1, c2 float64) *mat.Dense {
	g := raw(grad)
	firstMoment(v, g, a.beta1)
	secondMoment(s, g, a.beta2)
	out := make([]float64, len(g))
	for i := range g {
		out[i] = ((*v)[i] / c1) / (math.Sqrt((*s)[i]/c2) + Epsilon)
	}
	return like(grad, out)
}

// firstMoment folds g into v: v = beta*v + (1-beta)*g.
func firstMoment(v *[]float64, g []float64, beta float64) {
	if *v == nil {
		*v = make([]float64, len(g))
	}
	floats.Scale(beta, *v)
	floats.AddScaled(*v, 1-beta, g)
}

// secondMoment folds g² into s: s = beta*s + (1-beta)*g².
func secondMoment(s *[]float64, g []float64, beta float64) {
	if *s == nil {
		*s = make([]float64, len(g))
	}
	acc := *s
	for i, x := range g {
		acc[i] = beta*acc[i] + (1-beta)*x*x
	}
}

// raw returns the elements of m in row-major order.
func raw(m *mat.Dense) []float64 {
	r, c := m.Dims()
	rm := m.RawMatrix()
	if rm.Stride == c {
		return rm.Data[:r*c]
	}
	return mat.DenseCopyOf(m).RawMatrix().Data
}

// like wraps data in a matrix shaped as m.
func like(m *mat.Dense, data []float64) *mat.Dense {
	r, c := m.Dims()
	return mat.NewDense(r, c, data)
}
