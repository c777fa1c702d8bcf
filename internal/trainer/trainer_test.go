package trainer

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"distributed-cartpole-dreamer/internal/buffer"
	"distributed-cartpole-dreamer/internal/cartpole"
	"distributed-cartpole-dreamer/internal/worker"
	"distributed-cartpole-dreamer/internal/worldmodel"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Model = worldmodel.Config{
		LatentDim:     2,
		LatentClasses: 3,
		ActionDim:     1,
		ActionBins:    3,
		ObsSize:       cartpole.ObsSize,
		ModelDim:      8,
		NumBlocks:     2,
		LearningRate:  4e-3,
		Seed:          1,
	}
	cfg.BatchSize = 2
	cfg.SeqLen = 4
	cfg.Horizon = 3
	cfg.StoreSteps = 1000
	return cfg
}

func newTestTrainer(t *testing.T) *Trainer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tr, err := New(testConfig(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func syntheticTrajectory(n int, rng *rand.Rand) buffer.Trajectory {
	tr := buffer.Trajectory{WorkerID: "test", EpisodeID: uuid.NewString()}
	for i := 0; i < n; i++ {
		tr.Steps = append(tr.Steps, buffer.Step{
			Obs:    []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
			Action: []float64{rng.Float64()*2 - 1},
			Reward: 1,
			Done:   i == n-1,
		})
		tr.EpisodeReward++
	}
	return tr
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	for name, mutate := range map[string]func(*Config){
		"seq len":  func(c *Config) { c.SeqLen = 0 },
		"horizon":  func(c *Config) { c.Horizon = -1 },
		"discount": func(c *Config) { c.Discount = 1.5 },
		"model":    func(c *Config) { c.Model.ModelDim = 0 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: invalid config accepted", name)
		}
	}
}

func TestIngestRecordsLatents(t *testing.T) {
	tr := newTestTrainer(t)
	rng := rand.New(rand.NewSource(1))

	if err := tr.Ingest(syntheticTrajectory(5, rng)); err != nil {
		t.Fatal(err)
	}
	ws, err := tr.store.SampleWindows(1, 5, rng)
	if err != nil {
		t.Fatal(err)
	}
	for s, l := range ws[0].Latents {
		if len(l) != 2 {
			t.Fatalf("step %d: %d latent variables", s, len(l))
		}
		for _, row := range l {
			if len(row) != 3 {
				t.Fatalf("step %d: %d classes", s, len(row))
			}
		}
	}

	bad := syntheticTrajectory(2, rng)
	bad.Steps[1].Obs = []float64{1}
	if err := tr.Ingest(bad); err == nil {
		t.Error("trajectory with short observation accepted")
	}
	noID := syntheticTrajectory(2, rng)
	noID.EpisodeID = ""
	if err := tr.Ingest(noID); err == nil {
		t.Error("trajectory without id accepted")
	}

	want := Stats{Episodes: 1, StoredSteps: 5, Ingested: 1, NumParams: tr.model.NumParams(), RejectedTrajs: 2}
	if diff := cmp.Diff(want, tr.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestTrainIteration(t *testing.T) {
	tr := newTestTrainer(t)
	rng := rand.New(rand.NewSource(2))

	if err := tr.Ingest(syntheticTrajectory(3, rng)); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.TrainIteration(); !errors.Is(err, buffer.ErrNotEnoughData) {
		t.Fatalf("got %v, want ErrNotEnoughData", err)
	}

	for i := 0; i < 3; i++ {
		if err := tr.Ingest(syntheticTrajectory(10, rng)); err != nil {
			t.Fatal(err)
		}
	}
	for step := 1; step <= 3; step++ {
		report, err := tr.TrainIteration()
		if err != nil {
			t.Fatal(err)
		}
		if report.Step != step {
			t.Errorf("report step %d, want %d", report.Step, step)
		}
		l := report.Losses
		if l.Dynamics > 1 || l.Encoder > 1 || math.IsNaN(l.Total) {
			t.Errorf("unexpected losses %+v", l)
		}
		if math.IsNaN(report.ImaginedReturn) || math.IsInf(report.ImaginedReturn, 0) {
			t.Errorf("imagined return %v", report.ImaginedReturn)
		}
	}
	if last := tr.Stats().Last; last == nil || last.Step != 3 {
		t.Errorf("stats last report %+v", last)
	}
}

func TestMaskedReturn(t *testing.T) {
	r := &worldmodel.Rollout{
		Rewards:       [][]float64{{1, 1, 1}, {2, 2, 2}},
		Continuations: [][]float64{{1, 1, 1}, {1, 0, 1}},
	}
	// item 0: 1 + 0.5 + 0.25; item 1: 2 + 1, then masked.
	want := (1.75 + 3) / 2
	if got := MaskedReturn(r, 0.5); math.Abs(got-want) > 1e-12 {
		t.Errorf("MaskedReturn = %v, want %v", got, want)
	}
	if got := MaskedReturn(&worldmodel.Rollout{}, 0.5); got != 0 {
		t.Errorf("empty rollout return %v", got)
	}
}

func TestHandler(t *testing.T) {
	tr := newTestTrainer(t)
	srv := httptest.NewServer(NewHandler(tr))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/policy")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var payload worker.PolicyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Weights.Inputs() != cartpole.ObsSize || payload.Weights.Bins != 3 {
		t.Errorf("served weights: %d inputs, %d bins", payload.Weights.Inputs(), payload.Weights.Bins)
	}
	if err := payload.Weights.Validate(); err != nil {
		t.Error(err)
	}

	statsResp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer statsResp.Body.Close()
	var stats Stats
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.NumParams == 0 || stats.Last != nil {
		t.Errorf("stats %+v", stats)
	}
}

func TestRunnerPullsAndTrains(t *testing.T) {
	tr := newTestTrainer(t)
	rng := rand.New(rand.NewSource(3))

	replay, err := buffer.NewReplayBuffer(16, "fifo")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := replay.Enqueue(buffer.Item{Trajectory: syntheticTrajectory(8, rng)}); err != nil {
			t.Fatal(err)
		}
	}
	srv := httptest.NewServer(buffer.NewHandler(replay, tr.log))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			if s := tr.Stats(); s.Last != nil && s.Ingested == 4 {
				cancel()
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	r := &Runner{Trainer: tr, BufferURL: srv.URL, PollInterval: 20 * time.Millisecond}
	if err := r.Run(ctx); err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if replay.Size() != 0 {
		t.Errorf("%d trajectories left in the buffer", replay.Size())
	}
}
