package worldmodel

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"distributed-cartpole-dreamer/internal/autograd"
)

func TestLatentHeadsProduceDistributions(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	rng := rand.New(rand.NewSource(9))

	for trial := 0; trial < 20; trial++ {
		h := make([]float64, cfg.HiddenSize())
		obs := make([]float64, cfg.ObsSize)
		for i := range h {
			h[i] = rng.NormFloat64()
		}
		for i := range obs {
			obs[i] = rng.NormFloat64()
		}

		z, probs := m.Encoder.Infer(autograd.Const(h), autograd.Const(obs), rng)
		assertDistributions(t, "encoder", probs.Data, cfg.LatentClasses)
		assertOneHot(t, "encoder", z.Data, cfg.LatentClasses)

		z, probs = m.Predictor.Infer(autograd.Const(h), rng)
		assertDistributions(t, "predictor", probs.Data, cfg.LatentClasses)
		assertOneHot(t, "predictor", z.Data, cfg.LatentClasses)
		if diff := cmp.Diff(probs.Data, m.Predictor.Probs(autograd.Const(h)).Data); diff != "" {
			t.Errorf("Probs disagrees with Infer (-infer +probs):\n%s", diff)
		}
	}
}

// TestLatentGradientReachesProbabilities checks the straight-through path:
// a loss on the sampled latent produces gradients in the head's weights.
func TestLatentGradientReachesProbabilities(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	h := autograd.Const(make([]float64, cfg.HiddenSize()))
	h.Data[0] = 1

	z, _ := m.Predictor.Infer(h, rand.New(rand.NewSource(1)))
	w := make([]float64, len(z.Data))
	for i := range w {
		w[i] = float64(i + 1)
	}
	autograd.Backward(z.Mul(autograd.Const(w)).Sum())

	var norm float64
	for _, p := range m.Predictor.Params() {
		for _, g := range p.Grad {
			norm += g * g
		}
	}
	if norm == 0 {
		t.Error("no gradient reached the predictor parameters")
	}
}

func TestInferLatent(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)

	zs, err := m.InferLatent(m.DefaultHidden(3), [][]float64{{0, 0, 0, 0}, {1, 1, 1, 1}, {-1, 0, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(zs) != 3 {
		t.Fatalf("got %d latents, want 3", len(zs))
	}
	for i, z := range zs {
		if len(z) != cfg.LatentDim {
			t.Fatalf("latent %d has %d variables, want %d", i, len(z), cfg.LatentDim)
		}
		assertOneHot(t, "infer latent", z.Flatten(), cfg.LatentClasses)
	}

	_, err = m.InferLatent(m.DefaultHidden(1), [][]float64{{0, 0}})
	requireShapeError(t, err)
	_, err = m.InferLatent(m.DefaultHidden(2), [][]float64{{0, 0, 0, 0}})
	requireShapeError(t, err)
}

func TestLatentFlattenRoundTrip(t *testing.T) {
	l := Latent{{0, 1, 0}, {1, 0, 0}}
	if diff := cmp.Diff(l, UnflattenLatent(l.Flatten(), 3)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
