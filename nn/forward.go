package nn

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LayerCache holds what the forward pass computed for one layer.
// Mask is nil unless dropout was applied.
type LayerCache struct {
	Z, A, Mask *mat.Dense
}

// Cache is indexed 0..L; Layers[0].A is the input batch.
type Cache struct {
	Layers []LayerCache
}

// Output is A_L.
func (c *Cache) Output() *mat.Dense {
	return c.Layers[len(c.Layers)-1].A
}

// Forward computes Z_i = W_i·A_{i-1} + b_i and A_i = g_i(Z_i) for every layer.
//
// With applyDropout, layers with KeepProb < 1 zero each activation with probability
// 1-KeepProb and divide the survivors by KeepProb. Masks are drawn from rng, or from the
// global math/rand/v2 source when rng is nil.
func Forward(p *Parameters, x *mat.Dense, t Topology, applyDropout bool, rng *rand.Rand) (*Cache, error) {
	if p.Len() != t.Len() {
		return nil, errors.Wrapf(ErrShape, "%d parameter layers for a %d layer topology", p.Len(), t.Len())
	}
	var src rand.Source
	if rng != nil {
		src = rng
	}

	c := &Cache{Layers: make([]LayerCache, t.Len()+1)}
	c.Layers[0].A = x
	for i := 1; i <= t.Len(); i++ {
		layer := t.Layer(i)
		w, b := p.W(i), p.B(i)
		prev := c.Layers[i-1].A
		wr, wc := w.Dims()
		pr, _ := prev.Dims()
		if wc != pr {
			return nil, errors.Wrapf(ErrShape, "layer %d: weights take %d inputs, got %d rows", i, wc, pr)
		}
		if br, _ := b.Dims(); br != wr {
			return nil, errors.Wrapf(ErrShape, "layer %d: bias has %d rows for %d units", i, br, wr)
		}

		z := addColumn(dot(w, prev), b)
		a := apply(layer.Activation.Activate, z)
		lc := LayerCache{Z: z, A: a}
		if applyDropout && layer.KeepProb < 1 {
			lc.Mask = dropoutMask(a, layer.KeepProb, src)
			lc.A = scale(1/layer.KeepProb, multiply(a, lc.Mask))
		}
		c.Layers[i] = lc
	}
	return c, nil
}

// dropoutMask draws an independent Bernoulli(keep) entry for every element of a.
func dropoutMask(a mat.Matrix, keep float64, src rand.Source) *mat.Dense {
	r, cols := a.Dims()
	dist := distuv.Bernoulli{P: keep, Src: src}
	return mat.NewDense(r, cols, draw(dist, r*cols))
}
