package buffer

// Step is one environment transition recorded by a rollout worker.
type Step struct {
	Obs     []float64 `json:"obs"`
	Action  []float64 `json:"action"` // continuous, in [-1, 1]
	Reward  float64   `json:"reward"`
	Done    bool      `json:"done"`
	LogProb float64   `json:"log_prob"`
}

// Continuation is 0 on the step that ended the episode and 1 otherwise.
func (s Step) Continuation() float64 {
	if s.Done {
		return 0
	}
	return 1
}

type Trajectory struct {
	WorkerID      string  `json:"worker_id"`
	EpisodeID     string  `json:"episode_id"`
	Steps         []Step  `json:"steps"`
	EpisodeReward float64 `json:"episode_reward"`
	CreatedAtMs   int64   `json:"created_at_ms"`
}

type EnqueueRequest struct {
	BatchSentAtMs int64        `json:"batch_sent_at_ms"`
	Trajectories  []Trajectory `json:"trajectories"`
}

type DequeueResponse struct {
	Trajectories []Trajectory `json:"trajectories"`
}

// Stats is the payload of GET /stats.
type Stats struct {
	QueueLength int    `json:"queue_length"`
	Capacity    int    `json:"capacity"`
	Policy      Policy `json:"policy"`
}
