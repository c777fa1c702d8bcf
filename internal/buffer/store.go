package buffer

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNotEnoughData  = errors.New("not enough stored steps to sample a window")
	ErrUnknownEpisode = errors.New("episode not in store")
)

// Episode is a trajectory laid out for training. Latents holds one recorded
// posterior per step (variables × classes) and is rewritten after every
// training step that touches the episode.
type Episode struct {
	ID            string
	Observations  [][]float64
	Actions       [][]float64
	Rewards       []float64
	Continuations []float64
	Latents       [][][]float64
}

func (e *Episode) Len() int { return len(e.Observations) }

// EpisodeFromTrajectory splits a trajectory into per-field sequences.
// Latents are left for the caller to fill.
func EpisodeFromTrajectory(traj Trajectory) *Episode {
	ep := &Episode{ID: traj.EpisodeID}
	for _, s := range traj.Steps {
		ep.Observations = append(ep.Observations, s.Obs)
		ep.Actions = append(ep.Actions, s.Action)
		ep.Rewards = append(ep.Rewards, s.Reward)
		ep.Continuations = append(ep.Continuations, s.Continuation())
	}
	return ep
}

// Window is a copy of seqLen consecutive steps of one stored episode.
type Window struct {
	EpisodeID     string
	Start         int
	Observations  [][]float64
	Actions       [][]float64
	Rewards       []float64
	Continuations []float64
	Latents       [][][]float64
}

// EpisodeStore keeps the most recent episodes up to a step capacity,
// evicting the oldest whole episodes first. Safe for concurrent use.
type EpisodeStore struct {
	mu       sync.RWMutex
	episodes []*Episode
	byID     map[string]*Episode
	steps    int
	capacity int
}

func NewEpisodeStore(capacitySteps int) (*EpisodeStore, error) {
	if capacitySteps <= 0 {
		return nil, errors.New("store capacity must be greater than zero")
	}
	return &EpisodeStore{byID: make(map[string]*Episode), capacity: capacitySteps}, nil
}

// Add stores ep. Every step must already carry a latent.
func (s *EpisodeStore) Add(ep *Episode) error {
	n := ep.Len()
	if n == 0 {
		return errors.Errorf("episode %s has no steps", ep.ID)
	}
	if len(ep.Actions) != n || len(ep.Rewards) != n || len(ep.Continuations) != n || len(ep.Latents) != n {
		return errors.Errorf("episode %s has ragged fields", ep.ID)
	}
	if ep.ID == "" {
		return errors.New("episode has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[ep.ID]; ok {
		return errors.Errorf("episode %s already stored", ep.ID)
	}
	s.episodes = append(s.episodes, ep)
	s.byID[ep.ID] = ep
	s.steps += n
	for s.steps > s.capacity && len(s.episodes) > 1 {
		old := s.episodes[0]
		s.episodes = s.episodes[1:]
		delete(s.byID, old.ID)
		s.steps -= old.Len()
	}
	return nil
}

// Len is the number of stored episodes.
func (s *EpisodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// Steps is the number of stored steps.
func (s *EpisodeStore) Steps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps
}

// SampleWindows draws n windows of seqLen steps. Start positions are uniform
// over all valid (episode, offset) pairs, so longer episodes are sampled
// proportionally more often.
func (s *EpisodeStore) SampleWindows(n, seqLen int, rng *rand.Rand) ([]Window, error) {
	if n <= 0 || seqLen <= 0 {
		return nil, errors.Errorf("invalid window request n=%d seq_len=%d", n, seqLen)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var eligible []*Episode
	var starts []int // cumulative start counts
	total := 0
	for _, ep := range s.episodes {
		if k := ep.Len() - seqLen + 1; k > 0 {
			total += k
			eligible = append(eligible, ep)
			starts = append(starts, total)
		}
	}
	if total == 0 {
		return nil, ErrNotEnoughData
	}

	out := make([]Window, n)
	for i := range out {
		pick := rng.Intn(total)
		j := 0
		for starts[j] <= pick {
			j++
		}
		offset := pick
		if j > 0 {
			offset -= starts[j-1]
		}
		out[i] = window(eligible[j], offset, seqLen)
	}
	return out, nil
}

// StoreLatents overwrites the recorded latents of an episode from start on.
func (s *EpisodeStore) StoreLatents(episodeID string, start int, latents [][][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.byID[episodeID]
	if !ok {
		return errors.Wrap(ErrUnknownEpisode, episodeID)
	}
	if start < 0 || start+len(latents) > ep.Len() {
		return errors.Errorf("latents [%d, %d) outside episode %s of length %d", start, start+len(latents), episodeID, ep.Len())
	}
	for t, l := range latents {
		ep.Latents[start+t] = copyLatent(l)
	}
	return nil
}

func window(ep *Episode, start, seqLen int) Window {
	w := Window{
		EpisodeID:     ep.ID,
		Start:         start,
		Rewards:       append([]float64(nil), ep.Rewards[start:start+seqLen]...),
		Continuations: append([]float64(nil), ep.Continuations[start:start+seqLen]...),
	}
	for t := start; t < start+seqLen; t++ {
		w.Observations = append(w.Observations, append([]float64(nil), ep.Observations[t]...))
		w.Actions = append(w.Actions, append([]float64(nil), ep.Actions[t]...))
		w.Latents = append(w.Latents, copyLatent(ep.Latents[t]))
	}
	return w
}

func copyLatent(l [][]float64) [][]float64 {
	out := make([][]float64, len(l))
	for i, row := range l {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
