package nn

import (
	"distributed-cartpole-dreamer/internal/autograd"
)

// Module is anything that can enumerate its trainable parameters.
type Module interface {
	Params() []*autograd.Vec
}

// Registry collects the parameters of several modules in registration order
// so that one optimizer can update all of them together.
type Registry struct {
	names  []string
	params []*autograd.Vec
	counts map[string]int
}

func NewRegistry() *Registry {
	return &Registry{counts: make(map[string]int)}
}

// Register appends the parameters of m under name.
func (r *Registry) Register(name string, m Module) {
	ps := m.Params()
	r.names = append(r.names, name)
	r.params = append(r.params, ps...)
	for _, p := range ps {
		r.counts[name] += len(p.Data)
	}
}

// Params returns every registered parameter.
func (r *Registry) Params() []*autograd.Vec {
	return r.params
}

// Names returns the module names in registration order.
func (r *Registry) Names() []string {
	return r.names
}

// Size returns the number of scalar parameters registered under name, or
// across all modules when name is empty.
func (r *Registry) Size(name string) int {
	if name != "" {
		return r.counts[name]
	}
	total := 0
	for _, n := range r.counts {
		total += n
	}
	return total
}

// ZeroGrad clears every registered gradient.
func (r *Registry) ZeroGrad() {
	for _, p := range r.params {
		p.ZeroGrad()
	}
}
