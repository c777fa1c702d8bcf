package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/buffer"
	"distributed-cartpole-dreamer/internal/cartpole"
)

// DefaultBins is the number of action bins used when the trainer has not
// supplied weights.
const DefaultBins = 11

type Runner struct {
	WorkerID      string
	BufferURL     string
	TrainerURL    string
	BatchEpisodes int
	PolicyRefresh time.Duration
	Seed          int64
	Backoff       time.Duration
	Client        *http.Client
	Logger        *logrus.Logger
}

func (r *Runner) Run(ctx context.Context) error {
	if r.BatchEpisodes <= 0 {
		return errors.New("batch episodes must be > 0")
	}
	if r.Backoff <= 0 {
		r.Backoff = 500 * time.Millisecond
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := r.Logger
	if logger == nil {
		logger = logrus.New()
	}
	log := logger.WithField("worker_id", r.WorkerID)

	rng := rand.New(rand.NewSource(r.Seed))
	env := cartpole.NewEnv(rng)
	policy, err := NewPolicy(DefaultWeights(cartpole.ObsSize, cartpole.ActionDim, DefaultBins), rng)
	if err != nil {
		return err
	}
	lastPolicyPull := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.TrainerURL != "" && (r.PolicyRefresh == 0 || time.Since(lastPolicyPull) >= r.PolicyRefresh) {
			if next, err := fetchPolicy(ctx, client, r.TrainerURL, rng); err == nil {
				policy = next
				lastPolicyPull = time.Now()
			} else {
				log.WithError(err).Warn("policy fetch failed")
			}
		}

		trajectories := make([]buffer.Trajectory, 0, r.BatchEpisodes)
		for i := 0; i < r.BatchEpisodes; i++ {
			traj, err := CollectEpisode(env, policy, rng)
			if err != nil {
				return err
			}
			traj.WorkerID = r.WorkerID
			trajectories = append(trajectories, traj)
		}

		req := buffer.EnqueueRequest{
			BatchSentAtMs: time.Now().UnixMilli(),
			Trajectories:  trajectories,
		}

		status, err := postJSON(ctx, client, r.BufferURL+"/enqueue", req)
		if err != nil {
			log.WithError(err).Warn("enqueue failed")
			sleep(ctx, r.Backoff)
			continue
		}
		log.WithFields(logrus.Fields{
			"episodes": len(trajectories),
			"status":   status,
		}).Debug("batch sent")
		if status == http.StatusTooManyRequests {
			sleep(ctx, r.Backoff)
		}
	}
}

// CollectEpisode plays one episode of env under policy.
func CollectEpisode(env *cartpole.Env, policy *Policy, rng *rand.Rand) (buffer.Trajectory, error) {
	env.Reset()
	steps := make([]buffer.Step, 0, cartpole.MaxSteps())
	var episodeReward float64

	for {
		obs := env.Observation()
		action, logProb, err := policy.Action(obs, rng)
		if err != nil {
			return buffer.Trajectory{}, err
		}
		_, reward, done := env.Step(action[0])

		steps = append(steps, buffer.Step{
			Obs:     obs,
			Action:  action,
			Reward:  reward,
			Done:    done,
			LogProb: logProb,
		})
		episodeReward += reward
		if done {
			break
		}
	}

	return buffer.Trajectory{
		EpisodeID:     uuid.NewString(),
		Steps:         steps,
		EpisodeReward: episodeReward,
		CreatedAtMs:   time.Now().UnixMilli(),
	}, nil
}

// PolicyResponse is the payload of the trainer's GET /policy.
type PolicyResponse struct {
	Weights PolicyWeights `json:"weights"`
}

func fetchPolicy(ctx context.Context, client *http.Client, trainerURL string, rng *rand.Rand) (*Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trainerURL+"/policy", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("trainer returned %d", resp.StatusCode)
	}
	var payload PolicyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode policy")
	}
	if in := payload.Weights.Inputs(); in != cartpole.ObsSize {
		return nil, errors.Errorf("policy expects %d inputs, environment has %d", in, cartpole.ObsSize)
	}
	return NewPolicy(payload.Weights, rng)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
