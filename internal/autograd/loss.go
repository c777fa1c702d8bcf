package autograd

import (
	"math"
)

const bceEpsilon = 1e-7

// MeanSquaredError returns the mean of (pred - target)^2 over every element
// of every pair.
func MeanSquaredError(preds []*Vec, targets [][]float64) *Scalar {
	n := countElems(preds)
	var sum float64
	for i, p := range preds {
		for j, x := range p.Data {
			diff := x - targets[i][j]
			sum += diff * diff
		}
	}
	out := &Scalar{Data: sum / float64(n), prev: vecNodes(preds)}
	out.backFn = func() {
		scale := 2 * out.Grad / float64(n)
		for i, p := range preds {
			for j, x := range p.Data {
				p.Grad[j] += scale * (x - targets[i][j])
			}
		}
	}
	return out
}

// MeanAbsoluteError returns the mean of |pred - target|.
func MeanAbsoluteError(preds []*Vec, targets [][]float64) *Scalar {
	n := countElems(preds)
	var sum float64
	for i, p := range preds {
		for j, x := range p.Data {
			sum += math.Abs(x - targets[i][j])
		}
	}
	out := &Scalar{Data: sum / float64(n), prev: vecNodes(preds)}
	out.backFn = func() {
		scale := out.Grad / float64(n)
		for i, p := range preds {
			for j, x := range p.Data {
				switch diff := x - targets[i][j]; {
				case diff > 0:
					p.Grad[j] += scale
				case diff < 0:
					p.Grad[j] -= scale
				}
			}
		}
	}
	return out
}

// BinaryCrossEntropy returns the mean binary cross-entropy of probabilities
// preds against 0/1 targets. Probabilities are clipped away from 0 and 1.
func BinaryCrossEntropy(preds []*Vec, targets [][]float64) *Scalar {
	n := countElems(preds)
	var sum float64
	for i, p := range preds {
		for j, x := range p.Data {
			x = clip(x)
			y := targets[i][j]
			sum -= y*math.Log(x) + (1-y)*math.Log(1-x)
		}
	}
	out := &Scalar{Data: sum / float64(n), prev: vecNodes(preds)}
	out.backFn = func() {
		scale := out.Grad / float64(n)
		for i, p := range preds {
			for j, x := range p.Data {
				x = clip(x)
				y := targets[i][j]
				p.Grad[j] += scale * (x - y) / (x * (1 - x))
			}
		}
	}
	return out
}

// KLDivLogTarget computes sum(exp(t) * (t - in)) / rows for log-probability
// inputs and log-probability targets, i.e. KL(target || input) averaged over
// rows distributions. inputs and targets are paired element-wise.
func KLDivLogTarget(inputs, targets []*Vec, rows int) *Scalar {
	var sum float64
	for i, in := range inputs {
		t := targets[i]
		for j, tj := range t.Data {
			sum += math.Exp(tj) * (tj - in.Data[j])
		}
	}
	parents := append(vecNodes(inputs), vecNodes(targets)...)
	out := &Scalar{Data: sum / float64(rows), prev: parents}
	out.backFn = func() {
		scale := out.Grad / float64(rows)
		for i, in := range inputs {
			t := targets[i]
			for j, tj := range t.Data {
				p := math.Exp(tj)
				in.Grad[j] -= scale * p
				t.Grad[j] += scale * p * (tj - in.Data[j] + 1)
			}
		}
	}
	return out
}

func clip(x float64) float64 {
	if x < bceEpsilon {
		return bceEpsilon
	}
	if x > 1-bceEpsilon {
		return 1 - bceEpsilon
	}
	return x
}

func countElems(vs []*Vec) int {
	n := 0
	for _, v := range vs {
		n += len(v.Data)
	}
	return n
}

func vecNodes(vs []*Vec) []Node {
	nodes := make([]Node, len(vs))
	for i, v := range vs {
		nodes[i] = v
	}
	return nodes
}
