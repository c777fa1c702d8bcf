package nn

import (
	"math/rand"

	"distributed-cartpole-dreamer/internal/autograd"
)

// Activation selects the output nonlinearity of an MLP.
type Activation int

const (
	Identity Activation = iota
	Sigmoid
)

// MLP is Linear -> ReLU -> Linear, optionally followed by a sigmoid.
type MLP struct {
	Hidden *Linear
	Output *Linear
	Act    Activation
}

func NewMLP(in, hidden, out int, act Activation, rng *rand.Rand) *MLP {
	return &MLP{
		Hidden: NewLinear(in, hidden, rng),
		Output: NewLinear(hidden, out, rng),
		Act:    act,
	}
}

func (m *MLP) Forward(x *autograd.Vec) *autograd.Vec {
	y := m.Output.Forward(m.Hidden.Forward(x).ReLU())
	if m.Act == Sigmoid {
		return y.Sigmoid()
	}
	return y
}

func (m *MLP) Params() []*autograd.Vec {
	return append(m.Hidden.Params(), m.Output.Params()...)
}
