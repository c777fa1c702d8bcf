package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"distributed-cartpole-dreamer/internal/buffer"
)

// Runner drives a Trainer: it pulls trajectories from the replay buffer
// service and trains whenever the store holds enough data.
type Runner struct {
	Trainer      *Trainer
	BufferURL    string
	PollInterval time.Duration // wait when there is nothing to do
	Client       *http.Client
}

func (r *Runner) Run(ctx context.Context) error {
	if r.PollInterval <= 0 {
		r.PollInterval = 500 * time.Millisecond
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	log := r.Trainer.log

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		trajs, err := dequeue(ctx, client, r.BufferURL, r.Trainer.cfg.DequeueBatch)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("dequeue failed")
		}
		for _, traj := range trajs {
			if err := r.Trainer.Ingest(traj); err != nil {
				log.WithError(err).WithField("worker_id", traj.WorkerID).Warn("rejected trajectory")
			}
		}

		_, err = r.Trainer.TrainIteration()
		switch {
		case errors.Is(err, buffer.ErrNotEnoughData):
			sleep(ctx, r.PollInterval)
		case err != nil:
			return err
		case len(trajs) == 0:
			// Keep training on stored data but yield between steps.
			sleep(ctx, r.PollInterval/10)
		}
	}
}

// dequeue returns no trajectories and no error when the buffer is empty.
func dequeue(ctx context.Context, client *http.Client, bufferURL string, n int) ([]buffer.Trajectory, error) {
	url := fmt.Sprintf("%s/dequeue?batch_size=%d", bufferURL, n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, errors.Errorf("buffer returned %d", resp.StatusCode)
	}
	var payload buffer.DequeueResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode dequeue response")
	}
	return payload.Trajectories, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
