package acer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestDistProbs(t *testing.T) {
	c := anyvec64.CurrentCreator()
	d := NewDist(anydiff.NewConst(makeVec(c, 1, 2, 3)))

	probs := d.ProbsData()
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if !approxEqual(sum, 1) {
		t.Errorf("probabilities sum to %f", sum)
	}
	if probs[0] >= probs[1] || probs[1] >= probs[2] {
		t.Errorf("probabilities are not ordered: %v", probs)
	}

	logProb := scalarValue(d.LogProb(1))
	if !approxEqual(logProb, math.Log(probs[1])) {
		t.Errorf("log prob: got %f but expected %f", logProb,
			math.Log(probs[1]))
	}
}

func TestDistEntropy(t *testing.T) {
	c := anyvec64.CurrentCreator()
	uniform := NewDist(anydiff.NewConst(makeVec(c, 0, 0, 0, 0)))
	entropy := scalarValue(uniform.Entropy())
	if !approxEqual(entropy, math.Log(4)) {
		t.Errorf("entropy: got %f but expected %f", entropy, math.Log(4))
	}

	peaked := NewDist(anydiff.NewConst(makeVec(c, 30, 0)))
	if e := scalarValue(peaked.Entropy()); e > 0.01 {
		t.Errorf("peaked entropy: got %f", e)
	}
}

func TestDistSample(t *testing.T) {
	c := anyvec64.CurrentCreator()
	d := NewDist(anydiff.NewConst(makeVec(c, 4, 0)))
	rng := rand.New(rand.NewSource(1337))

	var first int
	const total = 2000
	for i := 0; i < total; i++ {
		if d.Sample(rng) == 0 {
			first++
		}
	}

	// The first action holds about 98% of the mass.
	freq := float64(first) / total
	if freq < 0.95 || freq > 1 {
		t.Errorf("sampled the likely action %f of the time", freq)
	}

	if d.MostProbable() != 0 {
		t.Errorf("most probable action: got %d", d.MostProbable())
	}
}

func TestActionValueV(t *testing.T) {
	c := anyvec64.CurrentCreator()
	d := NewDist(anydiff.NewConst(makeVec(c, 0, 0)))
	av := &ActionValue{QValues: anydiff.NewConst(makeVec(c, 2, 4))}

	v := scalarValue(av.V(d))
	if !approxEqual(v, 3) {
		t.Errorf("state value: got %f but expected 3", v)
	}
}
