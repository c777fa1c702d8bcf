package worldmodel

import (
	"math/rand"

	"distributed-cartpole-dreamer/internal/autograd"
	"distributed-cartpole-dreamer/internal/binning"
	"distributed-cartpole-dreamer/internal/nn"
)

// Latent is one discrete latent state: LatentDim rows, each a one-hot (or
// probability) vector over LatentClasses.
type Latent [][]float64

// Flatten concatenates the rows.
func (l Latent) Flatten() []float64 {
	var out []float64
	for _, row := range l {
		out = append(out, row...)
	}
	return out
}

// UnflattenLatent splits flat into rows of classes entries.
func UnflattenLatent(flat []float64, classes int) Latent {
	l := make(Latent, 0, len(flat)/classes)
	for off := 0; off+classes <= len(flat); off += classes {
		row := make([]float64, classes)
		copy(row, flat[off:off+classes])
		l = append(l, row)
	}
	return l
}

func (m *WorldModel) checkLatent(op string, l Latent) error {
	if err := checkLen(op, "latent variables", m.cfg.LatentDim, len(l)); err != nil {
		return err
	}
	return checkMatrix(op, "latent", l, m.cfg.LatentClasses)
}

// categoricalHead maps a context vector to LatentDim independent categorical
// distributions and draws a straight-through one-hot sample from them.
type categoricalHead struct {
	net     *nn.MLP
	vars    int
	classes int
}

func newCategoricalHead(in int, cfg Config, rng *rand.Rand) categoricalHead {
	return categoricalHead{
		net:     nn.NewMLP(in, cfg.ModelDim, cfg.LatentSize(), nn.Identity, rng),
		vars:    cfg.LatentDim,
		classes: cfg.LatentClasses,
	}
}

func (c categoricalHead) probs(x *autograd.Vec) *autograd.Vec {
	return c.net.Forward(x).SegmentSoftmax(c.classes)
}

// infer returns the sampled latent and the probabilities it was drawn from.
// The latent's forward value is the one-hot draw; its gradient flows to the
// probabilities.
func (c categoricalHead) infer(x *autograd.Vec, rng *rand.Rand) (latent, probs *autograd.Vec) {
	probs = c.probs(x)
	hard := make([]float64, len(probs.Data))
	for v := 0; v < c.vars; v++ {
		off := v * c.classes
		hard[off+binning.Sample(probs.Data[off:off+c.classes], rng)] = 1
	}
	return autograd.StraightThrough(hard, probs), probs
}

func (c categoricalHead) Params() []*autograd.Vec {
	return c.net.Params()
}

// LatentEncoder infers the posterior latent from the recurrent state and the
// observation.
type LatentEncoder struct {
	categoricalHead
}

func newLatentEncoder(cfg Config, rng *rand.Rand) *LatentEncoder {
	return &LatentEncoder{newCategoricalHead(cfg.HiddenSize()+cfg.ObsSize, cfg, rng)}
}

func (e *LatentEncoder) Infer(h, obs *autograd.Vec, rng *rand.Rand) (latent, probs *autograd.Vec) {
	return e.infer(autograd.Concat(h, obs), rng)
}

// LatentPredictor infers the prior latent from the recurrent state alone.
type LatentPredictor struct {
	categoricalHead
}

func newLatentPredictor(cfg Config, rng *rand.Rand) *LatentPredictor {
	return &LatentPredictor{newCategoricalHead(cfg.HiddenSize(), cfg, rng)}
}

func (p *LatentPredictor) Infer(h *autograd.Vec, rng *rand.Rand) (latent, probs *autograd.Vec) {
	return p.infer(h, rng)
}

// Probs returns the prior distribution without sampling.
func (p *LatentPredictor) Probs(h *autograd.Vec) *autograd.Vec {
	return p.probs(h)
}
