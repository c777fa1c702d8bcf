package worldmodel

import (
	"fmt"

	"github.com/pkg/errors"

	"distributed-cartpole-dreamer/internal/autograd"
	"distributed-cartpole-dreamer/internal/binning"
)

const (
	actionLow  = -1.0
	actionHigh = 1.0

	continueThreshold = 0.5
)

// Policy is the actor consulted during imagination. Given a batch of
// recurrent states and flattened latents it returns an action encoding and
// the full categorical probabilities, both batch × ActionDim × ActionBins.
type Policy interface {
	Act(h, z [][]float64) (actions, probs [][][]float64, err error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(h, z [][]float64) ([][][]float64, [][][]float64, error)

func (f PolicyFunc) Act(h, z [][]float64) ([][][]float64, [][][]float64, error) {
	return f(h, z)
}

// Rollout is an imagined trajectory batch. State sequences hold horizon+1
// entries; everything else holds horizon entries.
type Rollout struct {
	Hidden        [][][]float64   // batch × (H+1) × HiddenSize
	Latents       [][][]float64   // batch × (H+1) × LatentSize
	ActionProbs   [][][][]float64 // batch × H × ActionDim × ActionBins
	TakenProbs    [][][]float64   // batch × H × ActionDim
	Actions       [][][]float64   // batch × H × ActionDim, continuous
	Rewards       [][]float64     // batch × H
	Continuations [][]float64     // batch × H, 0 or 1
}

// Horizon is the number of imagined transitions.
func (r *Rollout) Horizon() int {
	if len(r.Rewards) == 0 {
		return 0
	}
	return len(r.Rewards[0])
}

func newRollout(batch, horizon int) *Rollout {
	r := &Rollout{
		Hidden:        make([][][]float64, batch),
		Latents:       make([][][]float64, batch),
		ActionProbs:   make([][][][]float64, batch),
		TakenProbs:    make([][][]float64, batch),
		Actions:       make([][][]float64, batch),
		Rewards:       make([][]float64, batch),
		Continuations: make([][]float64, batch),
	}
	for i := 0; i < batch; i++ {
		r.Hidden[i] = make([][]float64, 0, horizon+1)
		r.Latents[i] = make([][]float64, 0, horizon+1)
		r.ActionProbs[i] = make([][][]float64, 0, horizon)
		r.TakenProbs[i] = make([][]float64, 0, horizon)
		r.Actions[i] = make([][]float64, 0, horizon)
		r.Rewards[i] = make([]float64, 0, horizon)
		r.Continuations[i] = make([]float64, 0, horizon)
	}
	return r
}

// Imagine rolls the dynamics forward for horizon steps from z0, starting at
// the zero recurrent state. Only the first latent is given; every later one
// is sampled from the prior. All trajectories run the full horizon: a
// predicted episode end is reported in Continuations but does not stop the
// rollout.
func (m *WorldModel) Imagine(z0 []Latent, policy Policy, horizon int) (*Rollout, error) {
	const op = "imagine"
	if err := checkBatch(op, len(z0)); err != nil {
		return nil, err
	}
	if horizon < 0 {
		return nil, shapeErr(op, "horizon (min)", 0, horizon)
	}
	for i, l := range z0 {
		if err := m.checkLatent(fmt.Sprintf("%s: z0[%d]", op, i), l); err != nil {
			return nil, err
		}
	}

	batch := len(z0)
	hs := make([]*autograd.Vec, batch)
	zs := make([]*autograd.Vec, batch)
	for i := range z0 {
		hs[i] = autograd.Zeros(m.cfg.HiddenSize())
		zs[i] = autograd.NewVec(z0[i].Flatten())
	}

	r := newRollout(batch, horizon)
	for step := 0; step < horizon; step++ {
		hData, zData := values(hs), values(zs)
		actions, probs, err := policy.Act(hData, zData)
		if err != nil {
			return nil, errors.Wrapf(err, "imagine: policy at step %d", step)
		}
		if err := m.checkPolicyOutput(actions, probs, batch); err != nil {
			return nil, err
		}

		for i := 0; i < batch; i++ {
			taken := make([]float64, m.cfg.ActionDim)
			for d, idx := range binning.Argmax(actions[i]) {
				taken[d] = probs[i][d][idx]
			}
			a, err := binning.ValueFromDistribution(actions[i], actionLow, actionHigh)
			if err != nil {
				return nil, errors.Wrapf(err, "imagine: action of item %d at step %d", i, step)
			}

			reward := m.Reward.Predict(hs[i], zs[i]).Data[0]
			var cont float64
			if m.Continue.Predict(hs[i], zs[i]).Data[0] > continueThreshold {
				cont = 1
			}

			r.Hidden[i] = append(r.Hidden[i], hs[i].Value())
			r.Latents[i] = append(r.Latents[i], zs[i].Value())
			r.ActionProbs[i] = append(r.ActionProbs[i], copyMatrix(probs[i]))
			r.TakenProbs[i] = append(r.TakenProbs[i], taken)
			r.Actions[i] = append(r.Actions[i], a)
			r.Rewards[i] = append(r.Rewards[i], reward)
			r.Continuations[i] = append(r.Continuations[i], cont)

			hs[i] = m.Backbone.step(zs[i], autograd.NewVec(a), hs[i])
			zs[i], _ = m.Predictor.Infer(hs[i], m.rng)
		}
	}
	for i := 0; i < batch; i++ {
		r.Hidden[i] = append(r.Hidden[i], hs[i].Value())
		r.Latents[i] = append(r.Latents[i], zs[i].Value())
	}
	return r, nil
}

func (m *WorldModel) checkPolicyOutput(actions, probs [][][]float64, batch int) error {
	const op = "imagine"
	if err := checkLen(op, "policy action batch", batch, len(actions)); err != nil {
		return err
	}
	if err := checkLen(op, "policy probability batch", batch, len(probs)); err != nil {
		return err
	}
	for i := 0; i < batch; i++ {
		if err := checkLen(op, fmt.Sprintf("policy action dims[%d]", i), m.cfg.ActionDim, len(actions[i])); err != nil {
			return err
		}
		if err := checkLen(op, fmt.Sprintf("policy probability dims[%d]", i), m.cfg.ActionDim, len(probs[i])); err != nil {
			return err
		}
		if err := checkMatrix(op, fmt.Sprintf("policy actions[%d]", i), actions[i], m.cfg.ActionBins); err != nil {
			return err
		}
		if err := checkMatrix(op, fmt.Sprintf("policy probabilities[%d]", i), probs[i], m.cfg.ActionBins); err != nil {
			return err
		}
	}
	return nil
}

func values(vs []*autograd.Vec) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Value()
	}
	return out
}

func copyMatrix(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
