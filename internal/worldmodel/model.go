// Package worldmodel implements a recurrent state-space world model with
// discrete categorical latents.
//
// A WorldModel learns a compact latent per observation (LatentEncoder), a
// multi-block recurrent state summarizing history (RecurrentBackbone), a
// prior that predicts the next latent without the observation
// (LatentPredictor), and heads for reward, continuation and observation
// reconstruction. Imagine rolls the learned dynamics forward in latent space
// under an external policy.
//
// The model keeps no history between calls: recurrent and latent states are
// always passed in explicitly and returned as fresh slices. TrainStep mutates
// the parameters and must not run concurrently with any other method.
package worldmodel

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/autograd"
	"distributed-cartpole-dreamer/internal/nn"
)

type WorldModel struct {
	Backbone  *RecurrentBackbone
	Encoder   *LatentEncoder
	Predictor *LatentPredictor
	Reward    *RewardHead
	Continue  *ContinuationHead
	Decoder   *ObservationDecoder

	cfg      Config
	registry *nn.Registry
	opt      *nn.Adam
	rng      *rand.Rand
	logger   *logrus.Logger
}

type Option func(*WorldModel)

// WithLogger sets the logger used for training diagnostics.
func WithLogger(l *logrus.Logger) Option {
	return func(m *WorldModel) { m.logger = l }
}

// WithRand replaces the source used for latent sampling.
func WithRand(r *rand.Rand) Option {
	return func(m *WorldModel) { m.rng = r }
}

// New builds a world model with freshly initialized parameters. All six
// networks are registered in one registry owned by a single Adam optimizer.
func New(cfg Config, opts ...Option) (*WorldModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &WorldModel{
		Backbone:  newRecurrentBackbone(cfg, rng),
		Encoder:   newLatentEncoder(cfg, rng),
		Predictor: newLatentPredictor(cfg, rng),
		Reward:    newRewardHead(cfg, rng),
		Continue:  newContinuationHead(cfg, rng),
		Decoder:   newObservationDecoder(cfg, rng),
		cfg:       cfg,
		registry:  nn.NewRegistry(),
		rng:       rng,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logrus.New()
	}

	m.registry.Register("backbone", m.Backbone)
	m.registry.Register("encoder", m.Encoder)
	m.registry.Register("predictor", m.Predictor)
	m.registry.Register("reward", m.Reward)
	m.registry.Register("continue", m.Continue)
	m.registry.Register("decoder", m.Decoder)
	m.opt = nn.NewAdam(m.registry.Params(), nn.DefaultAdamConfig(cfg.LearningRate))

	m.logger.WithFields(logrus.Fields{
		"params":      m.registry.Size(""),
		"hidden_size": cfg.HiddenSize(),
		"latent_size": cfg.LatentSize(),
	}).Debug("world model initialized")
	return m, nil
}

func (m *WorldModel) Config() Config {
	return m.cfg
}

// NumParams is the number of scalar parameters under the optimizer.
func (m *WorldModel) NumParams() int {
	return m.registry.Size("")
}

// DefaultHidden returns batch zero recurrent states.
func (m *WorldModel) DefaultHidden(batch int) [][]float64 {
	return m.Backbone.DefaultHidden(batch)
}

// InferLatent samples a posterior latent for every (h, observation) pair.
func (m *WorldModel) InferLatent(h, obs [][]float64) ([]Latent, error) {
	const op = "infer latent"
	if err := checkLen(op, "batch size of h and observation", len(h), len(obs)); err != nil {
		return nil, err
	}
	if err := checkBatch(op, len(h)); err != nil {
		return nil, err
	}
	if err := checkMatrix(op, "h", h, m.cfg.HiddenSize()); err != nil {
		return nil, err
	}
	if err := checkMatrix(op, "observation", obs, m.cfg.ObsSize); err != nil {
		return nil, err
	}

	out := make([]Latent, len(h))
	for i := range h {
		z, _ := m.Encoder.Infer(autograd.Const(h[i]), autograd.Const(obs[i]), m.rng)
		out[i] = UnflattenLatent(z.Data, m.cfg.LatentClasses)
	}
	return out, nil
}

// Step advances every recurrent state by exactly one transition.
func (m *WorldModel) Step(h [][]float64, z []Latent, a [][]float64) ([][]float64, error) {
	const op = "step"
	if err := checkLen(op, "batch size of h and z", len(h), len(z)); err != nil {
		return nil, err
	}
	if err := checkLen(op, "batch size of h and a", len(h), len(a)); err != nil {
		return nil, err
	}
	zs := make([][][]float64, len(z))
	as := make([][][]float64, len(a))
	for i := range z {
		if err := m.checkLatent(op, z[i]); err != nil {
			return nil, err
		}
		zs[i] = [][]float64{z[i].Flatten()}
		as[i] = [][]float64{a[i]}
	}
	next, err := m.Backbone.Transition(zs, as, h)
	if err != nil {
		return nil, errors.Wrap(err, "step")
	}
	return next, nil
}
