package nn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gradients holds dZ_i, indexed 0..L; DZ[0] is unused.
type Gradients struct {
	DZ []*mat.Dense
}

// Backward runs the chain rule from the output layer down to layer 1.
//
// The output layer is assumed to be a sigmoid paired with cross-entropy, so
// dZ_L = A_L - Y. Every hidden layer is treated as rectified-linear:
// dZ_i = (W_{i+1}ᵀ·dZ_{i+1}) ⊙ relu'(Z_i).
//
// c must come from Forward on the same batch with the same parameters.
func Backward(p *Parameters, c *Cache, t Topology, y *mat.Dense) (*Gradients, error) {
	L := t.Len()
	if len(c.Layers) != L+1 || p.Len() != L {
		return nil, errors.Wrapf(ErrShape, "cache has %d layers and parameters %d, topology %d",
			len(c.Layers)-1, p.Len(), L)
	}
	out := c.Output()
	or, oc := out.Dims()
	yr, yc := y.Dims()
	if or != yr || oc != yc {
		return nil, errors.Wrapf(ErrShape, "output is %dx%d but labels are %dx%d", or, oc, yr, yc)
	}

	g := &Gradients{DZ: make([]*mat.Dense, L+1)}
	g.DZ[L] = subtract(out, y)
	for i := L - 1; i >= 1; i-- {
		dA := dot(p.W(i+1).T(), g.DZ[i+1])
		g.DZ[i] = multiply(dA, ReLU{}.Deactivate(c.Layers[i].Z))
	}
	return g, nil
}

// WeightGradients returns dW_i = dZ_i·A_{i-1}ᵀ / m and db_i = Σ_cols dZ_i / m,
// m being the batch size.
func WeightGradients(c *Cache, g *Gradients, i int) (dW, db *mat.Dense) {
	dZ := g.DZ[i]
	_, m := dZ.Dims()
	dW = scale(1/float64(m), dot(dZ, c.Layers[i-1].A.T()))
	db = scale(1/float64(m), rowSums(dZ))
	return dW, db
}
