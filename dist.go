package acer

import (
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Dist is a categorical distribution over discrete
// actions, parameterized by the unnormalized
// log-probabilities (logits) produced by an actor head.
//
// The distribution statistics are differentiable with
// respect to the logits node used to construct the Dist.
type Dist struct {
	// Logits is the node the Dist was built from.
	Logits anydiff.Res

	logPs anydiff.Res
	ps    anydiff.Res
}

// NewDist creates a Dist for a batch of one state.
func NewDist(logits anydiff.Res) *Dist {
	logPs := anydiff.LogSoftmax(logits, 0)
	return &Dist{
		Logits: logits,
		logPs:  logPs,
		ps:     anydiff.Exp(logPs),
	}
}

// LogProbs returns the log-probability vector over all
// actions.
func (d *Dist) LogProbs() anydiff.Res {
	return d.logPs
}

// Probs returns the probability vector over all actions.
func (d *Dist) Probs() anydiff.Res {
	return d.ps
}

// LogProb returns the log-probability of one action.
func (d *Dist) LogProb(action int) anydiff.Res {
	return anydiff.Slice(d.logPs, action, action+1)
}

// Entropy returns the entropy of the distribution.
func (d *Dist) Entropy() anydiff.Res {
	neg := anydiff.Sum(anydiff.Mul(d.ps, d.logPs))
	c := neg.Output().Creator()
	return anydiff.Scale(neg, c.MakeNumeric(-1))
}

// ProbsData returns the probabilities as a float64 slice.
func (d *Dist) ProbsData() []float64 {
	return vectorData(d.ps.Output())
}

// Sample samples an action index.
func (d *Dist) Sample(rng *rand.Rand) int {
	probs := d.ProbsData()
	p := rng.Float64()
	for i, x := range probs {
		p -= x
		if p < 0 {
			return i
		}
	}
	return len(probs) - 1
}

// MostProbable returns the action with the highest
// probability.
func (d *Dist) MostProbable() int {
	return anyvec.MaxIndex(d.ps.Output())
}

// An ActionValue wraps per-action value estimates
// produced by a critic head.
type ActionValue struct {
	QValues anydiff.Res
}

// Evaluate returns the Q estimate for one action.
func (a *ActionValue) Evaluate(action int) anydiff.Res {
	return anydiff.Slice(a.QValues, action, action+1)
}

// Data returns the Q estimates as a float64 slice.
func (a *ActionValue) Data() []float64 {
	return vectorData(a.QValues.Output())
}

// V computes the state value under the distribution,
// V(s) = sum over a of pi(a|s) * Q(s, a).
//
// The result is differentiable with respect to both the
// distribution's logits and the Q estimates.
func (a *ActionValue) V(d *Dist) anydiff.Res {
	return anydiff.Sum(anydiff.Mul(d.Probs(), a.QValues))
}

func vectorData(v anyvec.Vector) []float64 {
	return v.Creator().Float64Slice(v.Data())
}

func scalarValue(r anydiff.Res) float64 {
	return vectorData(r.Output())[0]
}

func oneHot(c anyvec.Creator, size, index int) anyvec.Vector {
	data := make([]float64, size)
	data[index] = 1
	return c.MakeVectorData(c.MakeNumericList(data))
}
