package vtrace

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// This file realizes the stop-gradient boundary around the V-trace
// computation for gorgonia graphs. The targets enter an enclosing loss
// graph only as value-bearing input nodes that are never part of any
// Learnables set, so no gradients are backpropagated through them.

// VSNode returns a [T, B] node in g holding a copy of the corrected
// value targets. The node carries no gradient information.
func (r *Returns) VSNode(g *G.ExprGraph, name string) *G.Node {
	return G.NodeFromAny(g, denseCopy(r.VS.RawMatrix().Data,
		r.VS.RawMatrix().Rows, r.VS.RawMatrix().Cols),
		G.WithName(name))
}

// PGAdvantagesNode returns a [T, B] node in g holding a copy of the
// policy gradient advantages. The node carries no gradient
// information.
func (r *Returns) PGAdvantagesNode(g *G.ExprGraph, name string) *G.Node {
	return G.NodeFromAny(g, denseCopy(r.PGAdvantages.RawMatrix().Data,
		r.PGAdvantages.RawMatrix().Rows, r.PGAdvantages.RawMatrix().Cols),
		G.WithName(name))
}

// BaselineLoss constructs the mean squared error between a [T, B]
// value function prediction node and the corrected value targets,
// mean((V(x_s) - v_s)²). Gradients of the loss flow only into
// prediction, never into the targets.
func BaselineLoss(prediction *G.Node, r *Returns) (*G.Node, error) {
	targets := r.VSNode(prediction.Graph(), "vtrace_vs_targets")

	loss, err := G.Sub(prediction, targets)
	if err != nil {
		return nil, fmt.Errorf("baselineLoss: %v", err)
	}
	loss, err = G.Square(loss)
	if err != nil {
		return nil, fmt.Errorf("baselineLoss: %v", err)
	}
	loss, err = G.Mean(loss)
	if err != nil {
		return nil, fmt.Errorf("baselineLoss: %v", err)
	}
	return loss, nil
}

// denseCopy copies a flat row-major buffer into a new [rows, cols]
// tensor, so that later mutation of the source cannot reach the graph
func denseCopy(data []float64, rows, cols int) *tensor.Dense {
	backing := make([]float64, rows*cols)
	copy(backing, data)
	return tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(backing),
	)
}
