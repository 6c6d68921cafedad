package acer

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// An updateBatch is a window of experience to run an
// update over.
type updateBatch struct {
	Steps []timestep

	// Rho holds importance ratios for the taken
	// actions, and RhoAll per-action ratios.
	// Both are nil on the pure on-policy path.
	// A ratio of zero marks a step whose behavior
	// probability was zero; such steps contribute no
	// correction.
	Rho    []float64
	RhoAll [][]float64

	// Bootstrap is the return estimate for the step
	// following the window, zero at a terminal step.
	Bootstrap float64
}

// computeUpdate runs the Retrace-corrected backward pass
// over a batch and accumulates gradients for the given
// parameters.
//
// It returns the gradient along with the scalar policy
// and value losses.
func (a *ACER) computeUpdate(b *updateBatch,
	params []*anydiff.Var) (anydiff.Grad, float64, float64) {
	grad := anydiff.NewGrad(params...)
	n := len(b.Steps)
	if n == 0 || len(grad) == 0 {
		return grad, 0, 0
	}
	c := b.Steps[0].Logits.Creator()

	piCoef := a.piLossCoef()
	vCoef := a.vLossCoef()
	if !a.NoStepNormalization {
		piCoef /= float64(n)
		vCoef /= float64(n)
	}

	stateUpstream := make([]anyrnn.StateGrad, 3)
	var piLoss, vLoss float64

	qRet := b.Bootstrap
	for i := n - 1; i >= 0; i-- {
		step := b.Steps[i]
		qRet = step.Reward + a.discount()*qRet

		// Rebuild the step's distribution statistics on
		// detached variables, so that gradients of the
		// loss with respect to the head outputs can be
		// computed without touching the parameters yet.
		lv := anydiff.NewVar(step.Logits.Copy())
		qv := anydiff.NewVar(step.QValues.Copy())
		dist := NewDist(lv)
		actionValue := &ActionValue{QValues: qv}
		value := actionValue.V(dist)
		v := scalarValue(value)
		advantage := qRet - v

		g := a.scoreGradient(c, b, i, dist, actionValue, lv, advantage, v)
		k := klGradient(c, step.AvgLogits, dist, lv)
		z := ProjectGradient(g, k, a.trustDelta())

		// Per-step loss on the detached variables.
		// The value term reaches the logits through the
		// policy mixture inside V.
		piTerm := anydiff.Scale(
			anydiff.Sum(anydiff.Mul(anydiff.NewConst(z), lv)),
			c.MakeNumeric(-1))
		piTerm = anydiff.Add(piTerm, anydiff.Scale(dist.Entropy(),
			c.MakeNumeric(-a.Beta)))
		vDiff := anydiff.AddScalar(
			anydiff.Scale(value, c.MakeNumeric(-1)),
			c.MakeNumeric(qRet))
		vTerm := anydiff.Scale(anydiff.Square(vDiff), c.MakeNumeric(0.5))

		loss := anydiff.Add(
			anydiff.Scale(piTerm, c.MakeNumeric(piCoef)),
			anydiff.Scale(vTerm, c.MakeNumeric(vCoef)))
		piLoss += piCoef * scalarValue(piTerm)
		vLoss += vCoef * scalarValue(vTerm)

		headGrad := anydiff.NewGrad(lv, qv)
		loss.Propagate(anyvec.Ones(c, 1), headGrad)

		// Feed the head gradients through the recorded
		// forward results to reach the parameters,
		// carrying recurrent state gradients backward.
		outs := step.Outs
		var baseUp1, baseUp2 anyvec.Vector
		baseUp1, stateUpstream[1] = outs[1].Propagate(headGrad[lv],
			stateUpstream[1], grad)
		baseUp2, stateUpstream[2] = outs[2].Propagate(headGrad[qv],
			stateUpstream[2], grad)
		baseUp1.Add(baseUp2)
		_, stateUpstream[0] = outs[0].Propagate(baseUp1, stateUpstream[0], grad)

		// Retrace: re-base the target return under the
		// truncated importance ratio.
		// The on-policy path keeps the plain discounted
		// return.
		if b.Rho != nil {
			qTaken := actionValue.Data()[step.Action]
			qRet = math.Min(1, b.Rho[i])*(qRet-qTaken) + v
		}
	}

	return grad, piLoss, vLoss
}

// scoreGradient computes the raw policy gradient with
// respect to the step's logits.
func (a *ACER) scoreGradient(c anyvec.Creator, b *updateBatch, i int,
	dist *Dist, actionValue *ActionValue, lv *anydiff.Var,
	advantage, v float64) anyvec.Vector {
	step := b.Steps[i]
	gGrad := anydiff.NewGrad(lv)
	logProb := dist.LogProb(step.Action)

	if b.Rho == nil {
		// Pure on-policy score.
		gLoss := anydiff.Scale(logProb, c.MakeNumeric(advantage))
		gLoss.Propagate(anyvec.Ones(c, 1), gGrad)
		return gGrad[lv]
	}

	rhoBar := math.Min(a.truncation(), b.Rho[i])
	gLoss := anydiff.Scale(logProb, c.MakeNumeric(rhoBar*advantage))

	// Bias correction over every action, weighted by how
	// much of the importance ratio the truncation cut
	// off.  The advantage factor is held constant.
	qData := actionValue.Data()
	weights := make([]float64, len(qData))
	for action, rhoA := range b.RhoAll[i] {
		if rhoA <= 0 {
			continue
		}
		w := (rhoA - a.truncation()) / rhoA
		if w > 0 {
			weights[action] = w * (qData[action] - v)
		}
	}
	wVec := c.MakeVectorData(c.MakeNumericList(weights))
	correction := anydiff.Sum(anydiff.Mul(dist.LogProbs(),
		anydiff.NewConst(wVec)))
	gLoss = anydiff.Add(gLoss, correction)

	gLoss.Propagate(anyvec.Ones(c, 1), gGrad)
	return gGrad[lv]
}

// klGradient computes the gradient with respect to the
// current logits of KL(average policy || current policy).
func klGradient(c anyvec.Creator, avgLogits anyvec.Vector, dist *Dist,
	lv *anydiff.Var) anyvec.Vector {
	avgDist := NewDist(anydiff.NewConst(avgLogits))
	kl := anydiff.Sum(anydiff.Mul(avgDist.Probs(),
		anydiff.Sub(avgDist.LogProbs(), dist.LogProbs())))
	kGrad := anydiff.NewGrad(lv)
	kl.Propagate(anyvec.Ones(c, 1), kGrad)
	return kGrad[lv]
}
