// Package autograd implements reverse-mode automatic differentiation over
// dense float64 vectors.
//
// Every operation returns a fresh node that remembers its parents and how to
// push its gradient back to them. Calling Backward on a scalar loss walks the
// graph in reverse topological order and accumulates into each Grad slice.
package autograd

// Node is anything that can take part in a compute graph.
type Node interface {
	parents() []Node
	backward()
}

// Vec is a differentiable vector.
type Vec struct {
	Data []float64
	Grad []float64

	prev   []Node
	backFn func()
}

// NewVec wraps data without copying it.
func NewVec(data []float64) *Vec {
	return &Vec{Data: data, Grad: make([]float64, len(data))}
}

// Zeros returns a zero vector of length n.
func Zeros(n int) *Vec {
	return NewVec(make([]float64, n))
}

// Const copies data into a new leaf vector.
func Const(data []float64) *Vec {
	d := make([]float64, len(data))
	copy(d, data)
	return NewVec(d)
}

// Derive builds a vector from data computed outside this package. backward
// receives the output gradient and must accumulate into the parents' Grad.
func Derive(data []float64, backward func(grad []float64), parents ...Node) *Vec {
	out := NewVec(data)
	out.prev = parents
	out.backFn = func() { backward(out.Grad) }
	return out
}

func (v *Vec) parents() []Node { return v.prev }

func (v *Vec) backward() {
	if v.backFn != nil {
		v.backFn()
	}
}

// Len returns the vector length.
func (v *Vec) Len() int { return len(v.Data) }

// Value returns a copy of the forward value.
func (v *Vec) Value() []float64 {
	d := make([]float64, len(v.Data))
	copy(d, v.Data)
	return d
}

// ZeroGrad clears the accumulated gradient.
func (v *Vec) ZeroGrad() {
	for i := range v.Grad {
		v.Grad[i] = 0
	}
}

// Scalar is a differentiable scalar, used for losses.
type Scalar struct {
	Data float64
	Grad float64

	prev   []Node
	backFn func()
}

// NewScalar returns a constant scalar.
func NewScalar(data float64) *Scalar {
	return &Scalar{Data: data}
}

func (s *Scalar) parents() []Node { return s.prev }

func (s *Scalar) backward() {
	if s.backFn != nil {
		s.backFn()
	}
}

// Backward seeds root with a unit gradient and propagates it to every node
// reachable from root.
func Backward(root Node) {
	topo := make([]Node, 0, 256)
	visited := make(map[Node]bool)

	var build func(n Node)
	build = func(n Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents() {
			build(p)
		}
		topo = append(topo, n)
	}
	build(root)

	switch r := root.(type) {
	case *Scalar:
		r.Grad = 1
	case *Vec:
		for i := range r.Grad {
			r.Grad[i] = 1
		}
	}

	for i := len(topo) - 1; i >= 0; i-- {
		topo[i].backward()
	}
}
