// Package trainer fits the world model on collected episodes and evaluates
// it by imagining rollouts under a latent actor.
package trainer

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/buffer"
	"distributed-cartpole-dreamer/internal/metrics"
	"distributed-cartpole-dreamer/internal/worker"
	"distributed-cartpole-dreamer/internal/worldmodel"
)

var _ worldmodel.Policy = (*worker.Policy)(nil)

type Config struct {
	Model worldmodel.Config

	BatchSize    int     // windows per train step
	SeqLen       int     // steps per window
	Horizon      int     // imagined steps per evaluation
	Discount     float64 // for the imagined return
	StoreSteps   int     // episode store capacity in steps
	ActorScale   float64 // init range of the latent actor weights
	DequeueBatch int     // trajectories pulled per request
}

func DefaultConfig() Config {
	return Config{
		Model:        worldmodel.DefaultConfig(),
		BatchSize:    16,
		SeqLen:       16,
		Horizon:      15,
		Discount:     0.99,
		StoreSteps:   100000,
		ActorScale:   0.1,
		DequeueBatch: 8,
	}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 || c.SeqLen <= 0 || c.StoreSteps <= 0 || c.DequeueBatch <= 0 {
		return errors.Errorf("trainer: batch_size %d, seq_len %d, store_steps %d and dequeue_batch %d must be > 0",
			c.BatchSize, c.SeqLen, c.StoreSteps, c.DequeueBatch)
	}
	if c.Horizon < 0 {
		return errors.Errorf("trainer: horizon %d must be >= 0", c.Horizon)
	}
	if c.Discount <= 0 || c.Discount > 1 {
		return errors.Errorf("trainer: discount %v must be in (0, 1]", c.Discount)
	}
	return c.Model.Validate()
}

// Report summarizes one training iteration.
type Report struct {
	Step           int               `json:"step"`
	Losses         worldmodel.Losses `json:"losses"`
	ImaginedReturn float64           `json:"imagined_return"`
}

type Stats struct {
	Episodes      int     `json:"episodes"`
	StoredSteps   int     `json:"stored_steps"`
	Ingested      int     `json:"ingested"`
	NumParams     int     `json:"num_params"`
	Last          *Report `json:"last,omitempty"`
	StaleLatents  int     `json:"stale_latents"`
	RejectedTrajs int     `json:"rejected_trajectories"`
}

// Trainer owns a world model and the episodes it learns from. Ingest,
// TrainIteration and Stats may be called from different goroutines.
type Trainer struct {
	cfg    Config
	store  *buffer.EpisodeStore
	log    *logrus.Logger
	served worker.PolicyWeights

	mu       sync.Mutex
	model    *worldmodel.WorldModel
	actor    *worker.Policy
	rng      *rand.Rand
	steps    int
	ingested int
	stale    int
	rejected int
	last     *Report
}

func New(cfg Config, logger *logrus.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	model, err := worldmodel.New(cfg.Model, worldmodel.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "build world model")
	}
	store, err := buffer.NewEpisodeStore(cfg.StoreSteps)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Model.Seed + 1))
	m := cfg.Model
	actor, err := worker.NewPolicy(
		worker.RandomWeights(m.HiddenSize()+m.LatentSize(), m.ActionDim, m.ActionBins, cfg.ActorScale, rng), rng)
	if err != nil {
		return nil, errors.Wrap(err, "build latent actor")
	}

	logger.WithFields(logrus.Fields{
		"params":      model.NumParams(),
		"hidden_size": m.HiddenSize(),
		"latent_size": m.LatentSize(),
	}).Info("world model ready")

	return &Trainer{
		cfg:    cfg,
		store:  store,
		log:    logger,
		served: worker.DefaultWeights(m.ObsSize, m.ActionDim, m.ActionBins),
		model:  model,
		actor:  actor,
		rng:    rng,
	}, nil
}

// Ingest encodes a trajectory once from the zero recurrent state to obtain
// its initial recorded latents and adds it to the store.
func (t *Trainer) Ingest(traj buffer.Trajectory) error {
	ep := buffer.EpisodeFromTrajectory(traj)
	if err := t.checkEpisode(ep); err != nil {
		t.mu.Lock()
		t.rejected++
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.model.DefaultHidden(1)
	ep.Latents = make([][][]float64, 0, ep.Len())
	for s := 0; s < ep.Len(); s++ {
		z, err := t.model.InferLatent(h, [][]float64{ep.Observations[s]})
		if err != nil {
			return errors.Wrapf(err, "encode episode %s step %d", ep.ID, s)
		}
		ep.Latents = append(ep.Latents, [][]float64(z[0]))
		if h, err = t.model.Step(h, z, [][]float64{ep.Actions[s]}); err != nil {
			return errors.Wrapf(err, "encode episode %s step %d", ep.ID, s)
		}
	}
	if err := t.store.Add(ep); err != nil {
		return err
	}

	t.ingested++
	metrics.EpisodesIngested.Inc()
	metrics.EpisodeReward.Observe(traj.EpisodeReward)
	metrics.StoredEpisodes.Set(float64(t.store.Len()))
	t.log.WithFields(logrus.Fields{
		"episode_id": ep.ID,
		"worker_id":  traj.WorkerID,
		"steps":      ep.Len(),
		"reward":     traj.EpisodeReward,
	}).Debug("episode ingested")
	return nil
}

func (t *Trainer) checkEpisode(ep *buffer.Episode) error {
	if ep.ID == "" {
		return errors.New("trajectory has no episode id")
	}
	if ep.Len() == 0 {
		return errors.Errorf("episode %s is empty", ep.ID)
	}
	for s := range ep.Observations {
		if len(ep.Observations[s]) != t.cfg.Model.ObsSize {
			return errors.Errorf("episode %s step %d: observation width %d, want %d",
				ep.ID, s, len(ep.Observations[s]), t.cfg.Model.ObsSize)
		}
		if len(ep.Actions[s]) != t.cfg.Model.ActionDim {
			return errors.Errorf("episode %s step %d: action width %d, want %d",
				ep.ID, s, len(ep.Actions[s]), t.cfg.Model.ActionDim)
		}
	}
	return nil
}

// TrainIteration samples windows, takes one world model step, writes the
// recomputed latents back and imagines from the windows' first latents.
// It returns buffer.ErrNotEnoughData until some episode spans SeqLen steps.
func (t *Trainer) TrainIteration() (Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	windows, err := t.store.SampleWindows(t.cfg.BatchSize, t.cfg.SeqLen, t.rng)
	if err != nil {
		return Report{}, err
	}
	batch := batchFromWindows(windows)

	losses, latents, err := t.model.TrainStep(batch)
	if err != nil {
		return Report{}, errors.Wrap(err, "train step")
	}
	t.steps++

	for i, w := range windows {
		recorded := make([][][]float64, len(latents[i]))
		for s, l := range latents[i] {
			recorded[s] = l
		}
		if err := t.store.StoreLatents(w.EpisodeID, w.Start, recorded); err != nil {
			// The episode was evicted while this step ran.
			t.stale++
			t.log.WithError(err).Debug("dropping recomputed latents")
		}
	}

	z0 := make([]worldmodel.Latent, len(latents))
	for i := range latents {
		z0[i] = latents[i][0]
	}
	rollout, err := t.model.Imagine(z0, t.actor, t.cfg.Horizon)
	if err != nil {
		return Report{}, errors.Wrap(err, "imagine")
	}

	report := Report{
		Step:           t.steps,
		Losses:         losses,
		ImaginedReturn: MaskedReturn(rollout, t.cfg.Discount),
	}
	t.last = &report

	metrics.TrainSteps.Inc()
	metrics.Loss.WithLabelValues("prediction").Set(losses.Prediction)
	metrics.Loss.WithLabelValues("dynamics").Set(losses.Dynamics)
	metrics.Loss.WithLabelValues("encoder").Set(losses.Encoder)
	metrics.Loss.WithLabelValues("continuation").Set(losses.Continuation)
	metrics.Loss.WithLabelValues("total").Set(losses.Total)
	metrics.ImaginedReturn.Set(report.ImaginedReturn)

	t.log.WithFields(losses.Fields()).WithFields(logrus.Fields{
		"step":            report.Step,
		"imagined_return": report.ImaginedReturn,
	}).Info("train iteration")
	return report, nil
}

func batchFromWindows(windows []buffer.Window) worldmodel.TrainBatch {
	b := worldmodel.TrainBatch{
		Observations:  make([][][]float64, len(windows)),
		Actions:       make([][][]float64, len(windows)),
		Rewards:       make([][]float64, len(windows)),
		Continuations: make([][]float64, len(windows)),
		Latents:       make([][]worldmodel.Latent, len(windows)),
	}
	for i, w := range windows {
		b.Observations[i] = w.Observations
		b.Actions[i] = w.Actions
		b.Rewards[i] = w.Rewards
		b.Continuations[i] = w.Continuations
		b.Latents[i] = make([]worldmodel.Latent, len(w.Latents))
		for s, l := range w.Latents {
			b.Latents[i][s] = l
		}
	}
	return b
}

// MaskedReturn is the batch mean of Σ γ^t·r_t, where a predicted episode
// end zeroes every later reward.
func MaskedReturn(r *worldmodel.Rollout, discount float64) float64 {
	if len(r.Rewards) == 0 {
		return 0
	}
	var total float64
	for i, rewards := range r.Rewards {
		weight := 1.0
		for s, reward := range rewards {
			total += weight * reward
			weight *= discount * r.Continuations[i][s]
		}
	}
	return total / float64(len(r.Rewards))
}

// ServedWeights are the observation-space policy weights handed to workers.
func (t *Trainer) ServedWeights() worker.PolicyWeights {
	return t.served
}

func (t *Trainer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		Episodes:      t.store.Len(),
		StoredSteps:   t.store.Steps(),
		Ingested:      t.ingested,
		NumParams:     t.model.NumParams(),
		StaleLatents:  t.stale,
		RejectedTrajs: t.rejected,
	}
	if t.last != nil {
		last := *t.last
		s.Last = &last
	}
	return s
}
