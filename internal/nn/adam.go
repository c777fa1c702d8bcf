package nn

import (
	"math"

	"distributed-cartpole-dreamer/internal/autograd"
)

type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// Adam keeps first and second moment estimates for a fixed parameter list.
type Adam struct {
	cfg    AdamConfig
	params []*autograd.Vec
	m, v   [][]float64
	t      int
}

func NewAdam(params []*autograd.Vec, cfg AdamConfig) *Adam {
	a := &Adam{
		cfg:    cfg,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// ZeroGrad clears the gradients of every parameter owned by the optimizer.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Step applies one bias-corrected update from the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(a.t))
	c2 := 1 - math.Pow(b2, float64(a.t))

	for i, p := range a.params {
		mi, vi := a.m[i], a.v[i]
		for j, g := range p.Grad {
			mi[j] = b1*mi[j] + (1-b1)*g
			vi[j] = b2*vi[j] + (1-b2)*g*g
			p.Data[j] -= a.cfg.LearningRate * (mi[j] / c1) / (math.Sqrt(vi[j]/c2) + a.cfg.Epsilon)
		}
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}
