package worldmodel

import (
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

func smallConfig() Config {
	return Config{
		LatentDim:     2,
		LatentClasses: 3,
		ActionDim:     1,
		ActionBins:    3,
		ObsSize:       4,
		ModelDim:      8,
		NumBlocks:     2,
		LearningRate:  4e-3,
		Seed:          1,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestModel(t *testing.T, cfg Config) *WorldModel {
	t.Helper()
	m, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func oneHotLatent(cfg Config, idx ...int) Latent {
	l := make(Latent, cfg.LatentDim)
	for v := range l {
		l[v] = make([]float64, cfg.LatentClasses)
		l[v][idx[v%len(idx)]] = 1
	}
	return l
}

func requireShapeError(t *testing.T, err error) *ShapeError {
	t.Helper()
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("got error %v, want *ShapeError", err)
	}
	return se
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.NumBlocks = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for zero blocks")
	}
	cfg = smallConfig()
	cfg.LearningRate = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for zero learning rate")
	}
}

func TestNumParamsCoversAllNetworks(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)

	in := cfg.LatentSize() + cfg.ActionDim
	gru := 3*cfg.ModelDim*in + 3*cfg.ModelDim + 3*cfg.ModelDim*cfg.ModelDim + 3*cfg.ModelDim
	mlp := func(in, out int) int { return in*cfg.ModelDim + cfg.ModelDim + cfg.ModelDim*out + out }
	headIn := cfg.HiddenSize() + cfg.LatentSize()
	want := cfg.NumBlocks*gru +
		mlp(cfg.HiddenSize()+cfg.ObsSize, cfg.LatentSize()) +
		mlp(cfg.HiddenSize(), cfg.LatentSize()) +
		mlp(headIn, 1) + mlp(headIn, 1) + mlp(headIn, cfg.ObsSize)
	if got := m.NumParams(); got != want {
		t.Errorf("NumParams = %d, want %d", got, want)
	}
}

func TestTransitionPreservesShape(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	rng := rand.New(rand.NewSource(3))

	for _, seq := range []int{1, 3, 7} {
		batch := 2
		z := make([][][]float64, batch)
		a := make([][][]float64, batch)
		for i := range z {
			for s := 0; s < seq; s++ {
				z[i] = append(z[i], oneHotLatent(cfg, rng.Intn(3)).Flatten())
				a[i] = append(a[i], []float64{rng.Float64()*2 - 1})
			}
		}
		h, err := m.Backbone.Transition(z, a, m.DefaultHidden(batch))
		if err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
		if len(h) != batch {
			t.Fatalf("seq %d: batch %d, want %d", seq, len(h), batch)
		}
		for i := range h {
			if len(h[i]) != cfg.ModelDim*cfg.NumBlocks {
				t.Errorf("seq %d: item %d has %d features, want %d", seq, i, len(h[i]), cfg.ModelDim*cfg.NumBlocks)
			}
		}
	}
}

func TestTransitionRejectsMismatchedShapes(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	z1 := [][]float64{oneHotLatent(cfg, 0).Flatten()}
	a1 := [][]float64{{0}}

	tests := []struct {
		name string
		z, a [][][]float64
		h    [][]float64
	}{
		{"batch of z and a", [][][]float64{z1, z1}, [][][]float64{a1}, m.DefaultHidden(2)},
		{"batch of h", [][][]float64{z1}, [][][]float64{a1}, m.DefaultHidden(2)},
		{"sequence length", [][][]float64{append(z1, z1[0])}, [][][]float64{a1}, m.DefaultHidden(1)},
		{"latent width", [][][]float64{{{1, 0}}}, [][][]float64{a1}, m.DefaultHidden(1)},
		{"action width", [][][]float64{z1}, [][][]float64{{{0, 1}}}, m.DefaultHidden(1)},
		{"hidden width", [][][]float64{z1}, [][][]float64{a1}, [][]float64{{0}}},
		{"empty sequence", [][][]float64{{}}, [][][]float64{{}}, m.DefaultHidden(1)},
		{"empty batch", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := m.Backbone.Transition(tt.z, tt.a, tt.h)
			requireShapeError(t, err)
			if h != nil {
				t.Errorf("got output %v alongside error", h)
			}
		})
	}
}

func TestStepIsDeterministic(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	h := [][]float64{make([]float64, cfg.HiddenSize())}
	for i := range h[0] {
		h[0][i] = float64(i%5) * 0.1
	}
	z := []Latent{oneHotLatent(cfg, 2, 0)}
	a := [][]float64{{0.3}}

	first, err := m.Step(h, z, a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Step(h, z, a)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Step is not deterministic (-first +second):\n%s", diff)
	}
	if len(first[0]) != cfg.HiddenSize() {
		t.Errorf("state width %d, want %d", len(first[0]), cfg.HiddenSize())
	}
}

func TestStepRejectsBadLatent(t *testing.T) {
	cfg := smallConfig()
	m := newTestModel(t, cfg)
	bad := Latent{{1, 0, 0}}
	_, err := m.Step(m.DefaultHidden(1), []Latent{bad}, [][]float64{{0}})
	requireShapeError(t, err)

	_, err = m.Step(m.DefaultHidden(2), []Latent{oneHotLatent(cfg, 0)}, [][]float64{{0}})
	requireShapeError(t, err)
}

func assertDistributions(t *testing.T, name string, probs []float64, classes int) {
	t.Helper()
	for off := 0; off < len(probs); off += classes {
		if s := floats.Sum(probs[off : off+classes]); math.Abs(s-1) > 1e-9 {
			t.Errorf("%s: variable %d sums to %v", name, off/classes, s)
		}
	}
}

func assertOneHot(t *testing.T, name string, latent []float64, classes int) {
	t.Helper()
	for off := 0; off < len(latent); off += classes {
		ones := 0
		for _, x := range latent[off : off+classes] {
			switch x {
			case 1:
				ones++
			case 0:
			default:
				t.Errorf("%s: variable %d has non-binary entry %v", name, off/classes, x)
			}
		}
		if ones != 1 {
			t.Errorf("%s: variable %d has %d hot entries", name, off/classes, ones)
		}
	}
}
