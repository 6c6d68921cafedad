package acer

import (
	"math"

	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/floats"
)

// ProjectGradient applies a trust-region constraint to a
// raw policy gradient.
//
// The g argument is the gradient of the policy objective
// with respect to the actor's logits, and k is the
// gradient of the KL divergence between the average
// policy anchor and the current policy with respect to
// the same logits.
//
// The result is the closed-form solution of minimizing
// the squared distance to g subject to the linearized KL
// constraint dot(k, z) <= delta:
//
//	z = g - max(0, (dot(k, g) - delta) / dot(k, k)) * k
//
// If dot(k, k) is zero or not finite, the constraint is
// inactive and g is returned unmodified rather than
// dividing by zero.
func ProjectGradient(g, k anyvec.Vector, delta float64) anyvec.Vector {
	gData := vectorData(g)
	kData := vectorData(k)

	kk := floats.Dot(kData, kData)
	if kk == 0 || math.IsNaN(kk) || math.IsInf(kk, 0) {
		return g.Copy()
	}

	scale := (floats.Dot(kData, gData) - delta) / kk
	if scale <= 0 || math.IsNaN(scale) {
		return g.Copy()
	}

	c := g.Creator()
	z := g.Copy()
	correction := k.Copy()
	correction.Scale(c.MakeNumeric(-scale))
	z.Add(correction)
	return z
}
