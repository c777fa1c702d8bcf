package autograd

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Add returns v + o element-wise.
func (v *Vec) Add(o *Vec) *Vec {
	d := make([]float64, len(v.Data))
	floats.AddTo(d, v.Data, o.Data)
	return Derive(d, func(g []float64) {
		floats.Add(v.Grad, g)
		floats.Add(o.Grad, g)
	}, v, o)
}

// Sub returns v - o element-wise.
func (v *Vec) Sub(o *Vec) *Vec {
	d := make([]float64, len(v.Data))
	floats.SubTo(d, v.Data, o.Data)
	return Derive(d, func(g []float64) {
		floats.Add(v.Grad, g)
		floats.Sub(o.Grad, g)
	}, v, o)
}

// Mul returns the element-wise product v * o.
func (v *Vec) Mul(o *Vec) *Vec {
	d := make([]float64, len(v.Data))
	floats.MulTo(d, v.Data, o.Data)
	vd, od := v.Data, o.Data
	return Derive(d, func(g []float64) {
		for i, gi := range g {
			v.Grad[i] += od[i] * gi
			o.Grad[i] += vd[i] * gi
		}
	}, v, o)
}

// Scale returns c * v.
func (v *Vec) Scale(c float64) *Vec {
	d := make([]float64, len(v.Data))
	floats.ScaleTo(d, c, v.Data)
	return Derive(d, func(g []float64) {
		floats.AddScaled(v.Grad, c, g)
	}, v)
}

// AddScalar returns v + c, broadcast.
func (v *Vec) AddScalar(c float64) *Vec {
	d := v.Value()
	floats.AddConst(c, d)
	return Derive(d, func(g []float64) {
		floats.Add(v.Grad, g)
	}, v)
}

// OneMinus returns 1 - v.
func (v *Vec) OneMinus() *Vec {
	d := make([]float64, len(v.Data))
	for i, x := range v.Data {
		d[i] = 1 - x
	}
	return Derive(d, func(g []float64) {
		floats.Sub(v.Grad, g)
	}, v)
}

// ReLU applies max(0, x).
func (v *Vec) ReLU() *Vec {
	d := make([]float64, len(v.Data))
	for i, x := range v.Data {
		if x > 0 {
			d[i] = x
		}
	}
	vd := v.Data
	return Derive(d, func(g []float64) {
		for i, gi := range g {
			if vd[i] > 0 {
				v.Grad[i] += gi
			}
		}
	}, v)
}

// Sigmoid applies the logistic function.
func (v *Vec) Sigmoid() *Vec {
	d := make([]float64, len(v.Data))
	for i, x := range v.Data {
		d[i] = sigmoid(x)
	}
	return Derive(d, func(g []float64) {
		for i, gi := range g {
			v.Grad[i] += gi * d[i] * (1 - d[i])
		}
	}, v)
}

// Tanh applies the hyperbolic tangent.
func (v *Vec) Tanh() *Vec {
	d := make([]float64, len(v.Data))
	for i, x := range v.Data {
		d[i] = math.Tanh(x)
	}
	return Derive(d, func(g []float64) {
		for i, gi := range g {
			v.Grad[i] += gi * (1 - d[i]*d[i])
		}
	}, v)
}

// Log returns the natural logarithm. Inputs must be positive.
func (v *Vec) Log() *Vec {
	d := make([]float64, len(v.Data))
	for i, x := range v.Data {
		d[i] = math.Log(x)
	}
	vd := v.Data
	return Derive(d, func(g []float64) {
		for i, gi := range g {
			v.Grad[i] += gi / vd[i]
		}
	}, v)
}

// Slice returns v[start:end] as a new node.
func (v *Vec) Slice(start, end int) *Vec {
	d := make([]float64, end-start)
	copy(d, v.Data[start:end])
	return Derive(d, func(g []float64) {
		floats.Add(v.Grad[start:end], g)
	}, v)
}

// Concat joins vectors end to end.
func Concat(vs ...*Vec) *Vec {
	total := 0
	for _, v := range vs {
		total += len(v.Data)
	}
	d := make([]float64, 0, total)
	parents := make([]Node, len(vs))
	for i, v := range vs {
		d = append(d, v.Data...)
		parents[i] = v
	}
	return Derive(d, func(g []float64) {
		off := 0
		for _, v := range vs {
			n := len(v.Data)
			floats.Add(v.Grad, g[off:off+n])
			off += n
		}
	}, parents...)
}

// SegmentSoftmax applies a softmax independently to every consecutive run of
// width elements. len(v) must be a multiple of width.
func (v *Vec) SegmentSoftmax(width int) *Vec {
	d := make([]float64, len(v.Data))
	for off := 0; off < len(d); off += width {
		softmaxInto(d[off:off+width], v.Data[off:off+width])
	}
	return Derive(d, func(g []float64) {
		for off := 0; off < len(d); off += width {
			y := d[off : off+width]
			gy := g[off : off+width]
			dot := floats.Dot(y, gy)
			for i := range y {
				v.Grad[off+i] += y[i] * (gy[i] - dot)
			}
		}
	}, v)
}

// Detach returns a copy of v that is cut from the graph. Gradients reaching
// the copy are not propagated to v.
func (v *Vec) Detach() *Vec {
	return Const(v.Data)
}

// StraightThrough returns a node whose forward value is exactly hard while
// its gradient flows to probs unchanged. hard and probs must have equal
// length.
func StraightThrough(hard []float64, probs *Vec) *Vec {
	d := make([]float64, len(hard))
	copy(d, hard)
	return Derive(d, func(g []float64) {
		floats.Add(probs.Grad, g)
	}, probs)
}

// Sum reduces v to a scalar.
func (v *Vec) Sum() *Scalar {
	out := &Scalar{Data: floats.Sum(v.Data), prev: []Node{v}}
	out.backFn = func() {
		floats.AddConst(out.Grad, v.Grad)
	}
	return out
}

// Softmax is the non-differentiable softmax of logits.
func Softmax(logits []float64) []float64 {
	d := make([]float64, len(logits))
	softmaxInto(d, logits)
	return d
}

func softmaxInto(dst, logits []float64) {
	m := floats.Max(logits)
	var sum float64
	for i, x := range logits {
		dst[i] = math.Exp(x - m)
		sum += dst[i]
	}
	floats.Scale(1/sum, dst)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
