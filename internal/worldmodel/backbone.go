package worldmodel

import (
	"fmt"
	"math/rand"

	"distributed-cartpole-dreamer/internal/autograd"
	"distributed-cartpole-dreamer/internal/nn"
)

// RecurrentBackbone advances the recurrent state h from the previous latent
// and action. It runs NumBlocks independent GRU cells over the same input;
// slice i of h always belongs to block i.
type RecurrentBackbone struct {
	Blocks []*nn.GRUCell

	latentSize int
	actionSize int
	modelDim   int
}

func newRecurrentBackbone(cfg Config, rng *rand.Rand) *RecurrentBackbone {
	b := &RecurrentBackbone{
		Blocks:     make([]*nn.GRUCell, cfg.NumBlocks),
		latentSize: cfg.LatentSize(),
		actionSize: cfg.ActionDim,
		modelDim:   cfg.ModelDim,
	}
	for i := range b.Blocks {
		b.Blocks[i] = nn.NewGRUCell(b.latentSize+b.actionSize, cfg.ModelDim, rng)
	}
	return b
}

// HiddenSize is ModelDim * NumBlocks.
func (b *RecurrentBackbone) HiddenSize() int {
	return b.modelDim * len(b.Blocks)
}

// DefaultHidden returns batch zero states.
func (b *RecurrentBackbone) DefaultHidden(batch int) [][]float64 {
	h := make([][]float64, batch)
	for i := range h {
		h[i] = make([]float64, b.HiddenSize())
	}
	return h
}

// Transition runs the blocks over z and a (batch × seq × features) starting
// from h and returns the state after the last step. All shapes are checked
// before anything is computed.
func (b *RecurrentBackbone) Transition(z, a [][][]float64, h [][]float64) ([][]float64, error) {
	const op = "transition"
	if err := b.validate(op, z, a, h); err != nil {
		return nil, err
	}
	zs := constSeqs(z)
	as := constSeqs(a)
	hs := make([]*autograd.Vec, len(h))
	for i, row := range h {
		hs[i] = autograd.Const(row)
	}

	out := make([][]float64, len(h))
	for i, states := range b.unroll(zs, as, hs) {
		out[i] = states[len(states)-1].Value()
	}
	return out, nil
}

func (b *RecurrentBackbone) validate(op string, z, a [][][]float64, h [][]float64) error {
	if err := checkLen(op, "batch size of z and a", len(z), len(a)); err != nil {
		return err
	}
	if err := checkLen(op, "batch size of z and h", len(z), len(h)); err != nil {
		return err
	}
	if err := checkBatch(op, len(z)); err != nil {
		return err
	}
	for i := range z {
		if err := checkLen(op, fmt.Sprintf("sequence length of z[%d] and a[%d]", i, i), len(z[i]), len(a[i])); err != nil {
			return err
		}
		if len(z[i]) == 0 {
			return shapeErr(op, "sequence length (min)", 1, 0)
		}
		if err := checkMatrix(op, fmt.Sprintf("z[%d]", i), z[i], b.latentSize); err != nil {
			return err
		}
		if err := checkMatrix(op, fmt.Sprintf("a[%d]", i), a[i], b.actionSize); err != nil {
			return err
		}
	}
	return checkMatrix(op, "h", h, b.HiddenSize())
}

// unroll returns the recurrent state after every step, indexed [batch][t].
// Inputs must already be validated.
func (b *RecurrentBackbone) unroll(z, a [][]*autograd.Vec, h []*autograd.Vec) [][]*autograd.Vec {
	out := make([][]*autograd.Vec, len(z))
	for i := range z {
		xs := make([]*autograd.Vec, len(z[i]))
		for t := range xs {
			xs[t] = autograd.Concat(z[i][t], a[i][t])
		}

		perBlock := make([][]*autograd.Vec, len(b.Blocks))
		for k, block := range b.Blocks {
			hk := h[i].Slice(k*b.modelDim, (k+1)*b.modelDim)
			perBlock[k] = block.Unroll(xs, hk)
		}

		out[i] = make([]*autograd.Vec, len(xs))
		for t := range xs {
			parts := make([]*autograd.Vec, len(b.Blocks))
			for k := range b.Blocks {
				parts[k] = perBlock[k][t]
			}
			out[i][t] = autograd.Concat(parts...)
		}
	}
	return out
}

// step advances a single state by one transition.
func (b *RecurrentBackbone) step(z, a, h *autograd.Vec) *autograd.Vec {
	return b.unroll([][]*autograd.Vec{{z}}, [][]*autograd.Vec{{a}}, []*autograd.Vec{h})[0][0]
}

func (b *RecurrentBackbone) Params() []*autograd.Vec {
	var ps []*autograd.Vec
	for _, block := range b.Blocks {
		ps = append(ps, block.Params()...)
	}
	return ps
}

func constSeqs(x [][][]float64) [][]*autograd.Vec {
	out := make([][]*autograd.Vec, len(x))
	for i, seq := range x {
		out[i] = make([]*autograd.Vec, len(seq))
		for t, v := range seq {
			out[i][t] = autograd.Const(v)
		}
	}
	return out
}
