package nn

import (
	"math"
	"math/rand"

	"distributed-cartpole-dreamer/internal/autograd"
)

// GRUCell is a single-layer gated recurrent unit with the gate layout
// (reset, update, candidate):
//
//	r  = σ(W_ir x + b_ir + W_hr h + b_hr)
//	u  = σ(W_iu x + b_iu + W_hu h + b_hu)
//	n  = tanh(W_in x + b_in + r ⊙ (W_hn h + b_hn))
//	h' = (1 - u) ⊙ n + u ⊙ h
type GRUCell struct {
	InputSize, HiddenSize int

	Input  *Linear // x -> 3H
	Hidden *Linear // h -> 3H
}

func NewGRUCell(in, hidden int, rng *rand.Rand) *GRUCell {
	bound := 1 / math.Sqrt(float64(hidden))
	return &GRUCell{
		InputSize:  in,
		HiddenSize: hidden,
		Input:      NewLinearUniform(in, 3*hidden, bound, rng),
		Hidden:     NewLinearUniform(hidden, 3*hidden, bound, rng),
	}
}

// Step advances the cell by one input.
func (c *GRUCell) Step(x, h *autograd.Vec) *autograd.Vec {
	n := c.HiddenSize
	gi := c.Input.Forward(x)
	gh := c.Hidden.Forward(h)

	r := gi.Slice(0, n).Add(gh.Slice(0, n)).Sigmoid()
	u := gi.Slice(n, 2*n).Add(gh.Slice(n, 2*n)).Sigmoid()
	cand := gi.Slice(2*n, 3*n).Add(r.Mul(gh.Slice(2*n, 3*n))).Tanh()

	return u.OneMinus().Mul(cand).Add(u.Mul(h))
}

// Unroll runs the cell over xs starting from h and returns the state after
// every input.
func (c *GRUCell) Unroll(xs []*autograd.Vec, h *autograd.Vec) []*autograd.Vec {
	out := make([]*autograd.Vec, len(xs))
	for t, x := range xs {
		h = c.Step(x, h)
		out[t] = h
	}
	return out
}

func (c *GRUCell) Params() []*autograd.Vec {
	return append(c.Input.Params(), c.Hidden.Params()...)
}
