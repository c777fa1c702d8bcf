// Package cartpole simulates the classic pole-balancing task with a
// continuous force action.
package cartpole

import (
	"math"
	"math/rand"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500

	// ObsSize is the length of Observation.
	ObsSize = 4
	// ActionDim is the number of continuous action components.
	ActionDim = 1
)

type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
}

// Vector returns the state as {x, ẋ, θ, θ̇}.
func (s State) Vector() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

type Env struct {
	State State
	Steps int
	Rand  *rand.Rand
}

func NewEnv(rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &Env{Rand: rng}
	env.Reset()
	return env
}

func (e *Env) Reset() State {
	e.State = State{
		X:        e.Rand.Float64()*0.1 - 0.05,
		XDot:     e.Rand.Float64()*0.1 - 0.05,
		Theta:    e.Rand.Float64()*0.1 - 0.05,
		ThetaDot: e.Rand.Float64()*0.1 - 0.05,
	}
	e.Steps = 0
	return e.State
}

// Observation is the current state as a vector of length ObsSize.
func (e *Env) Observation() []float64 {
	return e.State.Vector()
}

// Step pushes the cart with action·forceMax. The action is clipped to
// [-1, 1]; a NaN action applies no force.
func (e *Env) Step(action float64) (State, float64, bool) {
	force := forceMax * clampAction(action)

	cosTheta := math.Cos(e.State.Theta)
	sinTheta := math.Sin(e.State.Theta)
	thetaDot := e.State.ThetaDot

	temp := (force + poleMassLength*thetaDot*thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	s := e.State
	e.State = State{
		X:        s.X + tau*s.XDot,
		XDot:     s.XDot + tau*xAcc,
		Theta:    s.Theta + tau*s.ThetaDot,
		ThetaDot: s.ThetaDot + tau*thetaAcc,
	}
	e.Steps++

	done := e.failed() || e.Steps >= maxSteps
	reward := 1.0
	if done && e.Steps < maxSteps {
		reward = 0.0
	}
	return e.State, reward, done
}

func (e *Env) failed() bool {
	s := e.State
	return s.X < -xThreshold || s.X > xThreshold || s.Theta < -thetaThreshold || s.Theta > thetaThreshold
}

func clampAction(a float64) float64 {
	switch {
	case math.IsNaN(a):
		return 0
	case a > 1:
		return 1
	case a < -1:
		return -1
	}
	return a
}

func MaxSteps() int {
	return maxSteps
}
