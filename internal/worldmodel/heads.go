package worldmodel

import (
	"math/rand"

	"distributed-cartpole-dreamer/internal/autograd"
	"distributed-cartpole-dreamer/internal/nn"
)

// predictionHead is an MLP over concat(h, z_flat).
type predictionHead struct {
	net *nn.MLP
}

func newPredictionHead(cfg Config, out int, act nn.Activation, rng *rand.Rand) predictionHead {
	return predictionHead{net: nn.NewMLP(cfg.HiddenSize()+cfg.LatentSize(), cfg.ModelDim, out, act, rng)}
}

func (p predictionHead) Predict(h, z *autograd.Vec) *autograd.Vec {
	return p.net.Forward(autograd.Concat(h, z))
}

func (p predictionHead) Params() []*autograd.Vec {
	return p.net.Params()
}

// RewardHead predicts an unconstrained scalar reward.
type RewardHead struct{ predictionHead }

// ContinuationHead predicts the probability that the episode continues.
type ContinuationHead struct{ predictionHead }

// ObservationDecoder reconstructs the observation.
type ObservationDecoder struct{ predictionHead }

func newRewardHead(cfg Config, rng *rand.Rand) *RewardHead {
	return &RewardHead{newPredictionHead(cfg, 1, nn.Identity, rng)}
}

func newContinuationHead(cfg Config, rng *rand.Rand) *ContinuationHead {
	return &ContinuationHead{newPredictionHead(cfg, 1, nn.Sigmoid, rng)}
}

func newObservationDecoder(cfg Config, rng *rand.Rand) *ObservationDecoder {
	return &ObservationDecoder{newPredictionHead(cfg, cfg.ObsSize, nn.Identity, rng)}
}
