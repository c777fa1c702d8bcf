package worldmodel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/autograd"
)

const (
	// encoderLossScale weights the encoder side of the balanced KL.
	encoderLossScale = 0.1
	// klCeiling bounds each KL term of the loss.
	klCeiling = 1.0
	// uniformMix is the probability mass spread uniformly over the classes
	// before taking logarithms.
	uniformMix = 0.01
)

// TrainBatch is a batch of fixed-length windows of real experience.
type TrainBatch struct {
	Observations  [][][]float64 // batch × seq × ObsSize
	Actions       [][][]float64 // batch × seq × ActionDim
	Rewards       [][]float64   // batch × seq
	Continuations [][]float64   // batch × seq, 1 while the episode continues
	Latents       [][]Latent    // batch × seq, previously recorded posteriors
}

// Losses are the components of one training step. Encoder is reported before
// scaling; Total = Prediction + Dynamics + 0.1·Encoder.
type Losses struct {
	Prediction   float64
	Dynamics     float64
	Encoder      float64
	Continuation float64 // zero unless Config.ContinuationLoss is set
	Total        float64
}

func (l Losses) Fields() logrus.Fields {
	return logrus.Fields{
		"loss_pred":  l.Prediction,
		"loss_dyn":   l.Dynamics,
		"loss_enc":   l.Encoder,
		"loss_cont":  l.Continuation,
		"loss_total": l.Total,
	}
}

func (m *WorldModel) validateBatch(b TrainBatch) (batch, seq int, err error) {
	const op = "train step"
	batch = len(b.Observations)
	if err := checkBatch(op, batch); err != nil {
		return 0, 0, err
	}
	for _, c := range []struct {
		what string
		n    int
	}{
		{"batch size of actions", len(b.Actions)},
		{"batch size of rewards", len(b.Rewards)},
		{"batch size of continuations", len(b.Continuations)},
		{"batch size of latents", len(b.Latents)},
	} {
		if err := checkLen(op, c.what, batch, c.n); err != nil {
			return 0, 0, err
		}
	}

	seq = len(b.Observations[0])
	if seq == 0 {
		return 0, 0, shapeErr(op, "sequence length (min)", 1, 0)
	}
	for i := 0; i < batch; i++ {
		for _, c := range []struct {
			what string
			n    int
		}{
			{"observations", len(b.Observations[i])},
			{"actions", len(b.Actions[i])},
			{"rewards", len(b.Rewards[i])},
			{"continuations", len(b.Continuations[i])},
			{"latents", len(b.Latents[i])},
		} {
			if err := checkLen(op, fmt.Sprintf("sequence length of %s[%d]", c.what, i), seq, c.n); err != nil {
				return 0, 0, err
			}
		}
		if err := checkMatrix(op, fmt.Sprintf("observations[%d]", i), b.Observations[i], m.cfg.ObsSize); err != nil {
			return 0, 0, err
		}
		if err := checkMatrix(op, fmt.Sprintf("actions[%d]", i), b.Actions[i], m.cfg.ActionDim); err != nil {
			return 0, 0, err
		}
		for t, l := range b.Latents[i] {
			if err := m.checkLatent(fmt.Sprintf("%s: latents[%d][%d]", op, i, t), l); err != nil {
				return 0, 0, err
			}
		}
	}
	return batch, seq, nil
}

// TrainStep performs one optimization step on b and returns the loss
// components together with the freshly sampled posterior latents
// (batch × seq). Callers store those latents and pass them back as
// b.Latents the next time the same windows are trained on.
func (m *WorldModel) TrainStep(b TrainBatch) (Losses, [][]Latent, error) {
	batch, seq, err := m.validateBatch(b)
	if err != nil {
		return Losses{}, nil, err
	}

	// Recurrent states come from the recorded latents, starting at zero.
	h0 := make([]*autograd.Vec, batch)
	zRec := make([][]*autograd.Vec, batch)
	for i := range h0 {
		h0[i] = autograd.Zeros(m.cfg.HiddenSize())
		zRec[i] = make([]*autograd.Vec, seq)
		for t, l := range b.Latents[i] {
			zRec[i][t] = autograd.NewVec(l.Flatten())
		}
	}
	states := m.Backbone.unroll(zRec, constSeqs(b.Actions), h0)

	rows := batch * seq
	var (
		decoded    = make([]*autograd.Vec, 0, rows)
		rewards    = make([]*autograd.Vec, 0, rows)
		conts      = make([]*autograd.Vec, 0, rows)
		postLogs   = make([]*autograd.Vec, 0, rows)
		priorLogs  = make([]*autograd.Vec, 0, rows)
		obsTargets = make([][]float64, 0, rows)
		rewTargets = make([][]float64, 0, rows)
		conTargets = make([][]float64, 0, rows)
		latents    = make([][]Latent, batch)
	)
	for i := 0; i < batch; i++ {
		latents[i] = make([]Latent, seq)
		for t := 0; t < seq; t++ {
			// The state seen at step t is the one before transition t.
			h := h0[i]
			if t > 0 {
				h = states[i][t-1]
			}

			z, postProbs := m.Encoder.Infer(h, autograd.Const(b.Observations[i][t]), m.rng)
			latents[i][t] = UnflattenLatent(z.Data, m.cfg.LatentClasses)

			decoded = append(decoded, m.Decoder.Predict(h, z))
			rewards = append(rewards, m.Reward.Predict(h, z))
			if m.cfg.ContinuationLoss {
				conts = append(conts, m.Continue.Predict(h, z))
			}

			postLogs = append(postLogs, m.smoothLog(postProbs))
			priorLogs = append(priorLogs, m.smoothLog(m.Predictor.Probs(h)))

			obsTargets = append(obsTargets, b.Observations[i][t])
			rewTargets = append(rewTargets, []float64{b.Rewards[i][t]})
			conTargets = append(conTargets, []float64{b.Continuations[i][t]})
		}
	}

	lossPred := autograd.MeanSquaredError(decoded, obsTargets).
		Add(autograd.MeanAbsoluteError(rewards, rewTargets))
	var lossCont *autograd.Scalar
	if m.cfg.ContinuationLoss {
		lossCont = autograd.BinaryCrossEntropy(conts, conTargets)
		lossPred = lossPred.Add(lossCont)
	}

	klRows := rows * m.cfg.LatentDim
	lossDyn := autograd.KLDivLogTarget(priorLogs, detachAll(postLogs), klRows).ClampMax(klCeiling)
	lossEnc := autograd.KLDivLogTarget(detachAll(priorLogs), postLogs, klRows).ClampMax(klCeiling)

	total := lossPred.Add(lossDyn).Add(lossEnc.Scale(encoderLossScale))

	m.opt.ZeroGrad()
	autograd.Backward(total)
	m.opt.Step()

	losses := Losses{
		Prediction: lossPred.Data,
		Dynamics:   lossDyn.Data,
		Encoder:    lossEnc.Data,
		Total:      total.Data,
	}
	if lossCont != nil {
		losses.Continuation = lossCont.Data
	}
	m.logger.WithFields(losses.Fields()).WithFields(logrus.Fields{
		"batch": batch,
		"seq":   seq,
		"step":  m.opt.Steps(),
	}).Debug("world model train step")
	return losses, latents, nil
}

// smoothLog mixes p with a uniform floor and takes the logarithm.
func (m *WorldModel) smoothLog(p *autograd.Vec) *autograd.Vec {
	return p.Scale(1 - uniformMix).AddScalar(uniformMix / float64(m.cfg.LatentClasses)).Log()
}

func detachAll(vs []*autograd.Vec) []*autograd.Vec {
	out := make([]*autograd.Vec, len(vs))
	for i, v := range vs {
		out[i] = v.Detach()
	}
	return out
}
