package autograd

// Add returns s + o.
func (s *Scalar) Add(o *Scalar) *Scalar {
	out := &Scalar{Data: s.Data + o.Data, prev: []Node{s, o}}
	out.backFn = func() {
		s.Grad += out.Grad
		o.Grad += out.Grad
	}
	return out
}

// Scale returns c * s.
func (s *Scalar) Scale(c float64) *Scalar {
	out := &Scalar{Data: c * s.Data, prev: []Node{s}}
	out.backFn = func() {
		s.Grad += c * out.Grad
	}
	return out
}

// ClampMax returns min(s, max). Above the ceiling the result is constant and
// no gradient reaches s.
func (s *Scalar) ClampMax(max float64) *Scalar {
	if s.Data <= max {
		out := &Scalar{Data: s.Data, prev: []Node{s}}
		out.backFn = func() {
			s.Grad += out.Grad
		}
		return out
	}
	return &Scalar{Data: max, prev: []Node{s}}
}
