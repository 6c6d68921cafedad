package main

import (
	"math"
	"math/rand"

	"github.com/unixpickle/anyvec"
)

// Physics constants for the pole-balancing task.
const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	poleLength     = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * poleLength
	forceMax       = 10.0
	timeDelta      = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
)

// A CartPole is an anyrl.Env implementing the classic
// pole-balancing control problem.
//
// Observations are 4-dimensional state vectors and
// actions are one-hot vectors over {left, right}.
type CartPole struct {
	Creator anyvec.Creator

	// MaxSteps truncates episodes, if non-zero.
	MaxSteps int

	Rand *rand.Rand

	x, xDot, theta, thetaDot float64
	timestep                 int
}

// Reset resets the environment.
func (c *CartPole) Reset() (anyvec.Vector, error) {
	c.x = c.Rand.Float64()*0.1 - 0.05
	c.xDot = c.Rand.Float64()*0.1 - 0.05
	c.theta = c.Rand.Float64()*0.1 - 0.05
	c.thetaDot = c.Rand.Float64()*0.1 - 0.05
	c.timestep = 0
	return c.obsVec(), nil
}

// Step takes a step in the environment.
func (c *CartPole) Step(action anyvec.Vector) (obs anyvec.Vector,
	reward float64, done bool, err error) {
	force := forceMax
	if anyvec.MaxIndex(action) == 0 {
		force = -forceMax
	}

	cosTheta := math.Cos(c.theta)
	sinTheta := math.Sin(c.theta)

	temp := (force + poleMassLength*c.thetaDot*c.thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) /
		(poleLength * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	c.x += timeDelta * c.xDot
	c.xDot += timeDelta * xAcc
	c.theta += timeDelta * c.thetaDot
	c.thetaDot += timeDelta * thetaAcc
	c.timestep++

	fell := c.x < -xThreshold || c.x > xThreshold ||
		c.theta < -thetaThreshold || c.theta > thetaThreshold
	done = fell || (c.MaxSteps != 0 && c.timestep >= c.MaxSteps)
	if !fell {
		reward = 1
	}
	obs = c.obsVec()
	return
}

func (c *CartPole) obsVec() anyvec.Vector {
	state := []float64{c.x, c.xDot, c.theta, c.thetaDot}
	return c.Creator.MakeVectorData(c.Creator.MakeNumericList(state))
}
