package worker

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"distributed-cartpole-dreamer/internal/binning"
)

const (
	actionLow  = -1.0
	actionHigh = 1.0
)

// PolicyWeights parameterize a linear softmax policy with one categorical
// distribution over Bins per action dimension. Row d*Bins+k of W scores bin
// k of dimension d.
type PolicyWeights struct {
	ActionDim int         `json:"action_dim"`
	Bins      int         `json:"bins"`
	W         [][]float64 `json:"w"` // shape: [ActionDim*Bins][in]
	B         []float64   `json:"b"` // shape: [ActionDim*Bins]
}

// DefaultWeights favours pushing in the direction the summed input leans.
func DefaultWeights(in, actionDim, bins int) PolicyWeights {
	centers := binning.Linspace(actionLow, actionHigh, bins)
	w := PolicyWeights{ActionDim: actionDim, Bins: bins, B: make([]float64, actionDim*bins)}
	for d := 0; d < actionDim; d++ {
		for k := 0; k < bins; k++ {
			row := make([]float64, in)
			for j := range row {
				row[j] = 0.01 * centers[k]
			}
			w.W = append(w.W, row)
		}
	}
	return w
}

// RandomWeights draws every weight uniformly from [-scale, scale].
func RandomWeights(in, actionDim, bins int, scale float64, rng *rand.Rand) PolicyWeights {
	w := PolicyWeights{ActionDim: actionDim, Bins: bins, B: make([]float64, actionDim*bins)}
	for r := 0; r < actionDim*bins; r++ {
		row := make([]float64, in)
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * scale
		}
		w.W = append(w.W, row)
	}
	return w
}

// Inputs is the feature width the weights expect.
func (w PolicyWeights) Inputs() int {
	if len(w.W) == 0 {
		return 0
	}
	return len(w.W[0])
}

func (w PolicyWeights) Validate() error {
	if w.ActionDim <= 0 || w.Bins <= 0 {
		return errors.Errorf("policy: action_dim %d and bins %d must be > 0", w.ActionDim, w.Bins)
	}
	rows := w.ActionDim * w.Bins
	if len(w.W) != rows || len(w.B) != rows {
		return errors.Errorf("policy: want %d rows, got w=%d b=%d", rows, len(w.W), len(w.B))
	}
	in := w.Inputs()
	if in == 0 {
		return errors.New("policy: weights have no inputs")
	}
	for i, row := range w.W {
		if len(row) != in {
			return errors.Errorf("policy: row %d has %d inputs, want %d", i, len(row), in)
		}
	}
	return nil
}

// Policy samples continuous actions by picking a bin per dimension. It also
// implements worldmodel.Policy over concatenated recurrent state and latent.
// A Policy is not safe for concurrent use.
type Policy struct {
	Weights PolicyWeights

	w   *mat.Dense
	rng *rand.Rand
}

func NewPolicy(weights PolicyWeights, rng *rand.Rand) (*Policy, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	w := mat.NewDense(len(weights.W), weights.Inputs(), nil)
	for i, row := range weights.W {
		w.SetRow(i, row)
	}
	return &Policy{Weights: weights, w: w, rng: rng}, nil
}

// Distribution returns per-dimension bin probabilities for input x.
func (p *Policy) Distribution(x []float64) ([][]float64, error) {
	if len(x) != p.Weights.Inputs() {
		return nil, errors.Errorf("policy: input has %d features, want %d", len(x), p.Weights.Inputs())
	}
	logits := mat.NewVecDense(len(p.Weights.B), nil)
	logits.MulVec(p.w, mat.NewVecDense(len(x), x))
	raw := logits.RawVector().Data
	floats.Add(raw, p.Weights.B)

	bins := p.Weights.Bins
	dist := make([][]float64, p.Weights.ActionDim)
	for d := range dist {
		dist[d] = softmax(raw[d*bins : (d+1)*bins])
	}
	return dist, nil
}

// Action samples an action for obs and returns it with its log-probability.
func (p *Policy) Action(obs []float64, rng *rand.Rand) ([]float64, float64, error) {
	dist, err := p.Distribution(obs)
	if err != nil {
		return nil, 0, err
	}
	oneHot := make([][]float64, len(dist))
	var logProb float64
	for d, probs := range dist {
		choice := binning.Sample(probs, rng)
		logProb += math.Log(probs[choice] + 1e-8)
		oneHot[d] = binning.OneHot(choice, len(probs))
	}
	action, err := binning.ValueFromDistribution(oneHot, actionLow, actionHigh)
	if err != nil {
		return nil, 0, err
	}
	return action, logProb, nil
}

// Act samples one-hot bin choices for every (h, z) pair.
func (p *Policy) Act(h, z [][]float64) ([][][]float64, [][][]float64, error) {
	if len(h) != len(z) {
		return nil, nil, errors.Errorf("policy: %d states for %d latents", len(h), len(z))
	}
	actions := make([][][]float64, len(h))
	probs := make([][][]float64, len(h))
	for i := range h {
		x := make([]float64, 0, len(h[i])+len(z[i]))
		x = append(append(x, h[i]...), z[i]...)
		dist, err := p.Distribution(x)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range dist {
			actions[i] = append(actions[i], binning.OneHot(binning.Sample(row, p.rng), len(row)))
		}
		probs[i] = dist
	}
	return actions, probs, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	values := make([]float64, len(logits))
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
	}
	floats.Scale(1/floats.Sum(values), values)
	return values
}
