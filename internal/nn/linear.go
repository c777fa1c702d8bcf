// Package nn provides the trainable building blocks of the world model:
// dense layers, small MLPs, GRU cells, a parameter registry and Adam.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"distributed-cartpole-dreamer/internal/autograd"
)

// Linear is a dense affine layer y = W x + b. Weight is stored row-major with
// shape (Out, In).
type Linear struct {
	In, Out int
	Weight  *autograd.Vec
	Bias    *autograd.Vec
}

// NewLinear initializes weights and biases uniformly in
// [-1/sqrt(in), 1/sqrt(in)].
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	return NewLinearUniform(in, out, 1/math.Sqrt(float64(in)), rng)
}

// NewLinearUniform initializes all parameters uniformly in [-bound, bound].
func NewLinearUniform(in, out int, bound float64, rng *rand.Rand) *Linear {
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (2*rng.Float64() - 1) * bound
	}
	return &Linear{In: in, Out: out, Weight: autograd.NewVec(w), Bias: autograd.NewVec(b)}
}

// Forward applies the layer to x.
func (l *Linear) Forward(x *autograd.Vec) *autograd.Vec {
	w := mat.NewDense(l.Out, l.In, l.Weight.Data)
	xv := mat.NewVecDense(l.In, x.Data)

	var y mat.VecDense
	y.MulVec(w, xv)
	out := make([]float64, l.Out)
	floats.AddTo(out, y.RawVector().Data, l.Bias.Data)

	return autograd.Derive(out, func(grad []float64) {
		g := mat.NewVecDense(l.Out, grad)
		gw := mat.NewDense(l.Out, l.In, l.Weight.Grad)
		gw.RankOne(gw, 1, g, xv)
		floats.Add(l.Bias.Grad, grad)

		var gx mat.VecDense
		gx.MulVec(w.T(), g)
		floats.Add(x.Grad, gx.RawVector().Data)
	}, l.Weight, l.Bias, x)
}

// Params lists the trainable parameters.
func (l *Linear) Params() []*autograd.Vec {
	return []*autograd.Vec{l.Weight, l.Bias}
}
