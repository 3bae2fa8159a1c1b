package nn

import "ffnet/optim"

// Update applies one gradient step to every layer, from L down to 1.
//
// The weight gradient is regularized as dW + (lambd/m)·W before it goes through the
// layer's optimizer; biases are not regularized. The result is scaled by the layer's
// learning rate at progress and subtracted from the parameters. step is the
// bias-correction exponent handed to the optimizer.
func Update(p *Parameters, c *Cache, g *Gradients, t Topology, bank *optim.Bank, progress, step int) {
	for i := t.Len(); i >= 1; i-- {
		layer := t.Layer(i)
		dW, db := WeightGradients(c, g, i)
		if layer.Lambd != 0 {
			_, m := g.DZ[i].Dims()
			dW = add(dW, scale(layer.Lambd/float64(m), p.W(i)))
		}
		uW, ub := bank.Direction(i, dW, db, step)
		lr := layer.LearningRate(progress)

		params := p.Layer(i)
		params.W = subtract(params.W, scale(lr, uW))
		params.B = subtract(params.B, scale(lr, ub))
	}
}
