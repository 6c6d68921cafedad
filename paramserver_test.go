package acer

import (
	"math"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestMakeLocalDisjoint(t *testing.T) {
	c := anyvec64.CurrentCreator()
	agent := testAgent(c, 3, 4, 2, 0)
	server, err := NewParamServer(agent, &RMSProp{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	local, err := server.MakeLocal()
	if err != nil {
		t.Fatal(err)
	}

	shared := server.Shared().AllParameters()
	local.Params[0].Vector.AddScalar(c.MakeNumeric(1))
	sharedVal := vectorData(shared[0].Vector)[0]
	localVal := vectorData(local.Params[0].Vector)[0]
	if !approxEqual(localVal, sharedVal+1) {
		t.Errorf("local mutation leaked: shared %f, local %f",
			sharedVal, localVal)
	}

	server.Sync(local)
	for i, param := range shared {
		sharedData := vectorData(param.Vector)
		localData := vectorData(local.Params[i].Vector)
		for j, x := range sharedData {
			if !approxEqual(x, localData[j]) {
				t.Fatalf("parameter %d differs after sync", i)
			}
		}
	}
}

func TestSoftCopyParams(t *testing.T) {
	c := anyvec64.CurrentCreator()
	dst := []*anydiff.Var{anydiff.NewVar(makeVec(c, 1, 2))}
	src := []*anydiff.Var{anydiff.NewVar(makeVec(c, 3, 6))}

	SoftCopyParams(dst, src, 0.25)

	expected := []float64{1*0.75 + 3*0.25, 2*0.75 + 6*0.25}
	for i, x := range expected {
		got := vectorData(dst[0].Vector)[i]
		if !approxEqual(got, x) {
			t.Errorf("component %d: got %f but expected %f", i, got, x)
		}
	}
}

func TestUpdateAppliesStep(t *testing.T) {
	c := anyvec64.CurrentCreator()
	agent := testAgent(c, 1, 1, 2, 0)
	opt := &RMSProp{StepSize: 0.1}
	server, err := NewParamServer(agent, opt, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	local, err := server.MakeLocal()
	if err != nil {
		t.Fatal(err)
	}

	// Parameter 3 is the actor's bias, which is zero in
	// a fresh agent.
	grad := anydiff.NewGrad(local.Params...)
	grad[local.Params[3]].AddScalar(c.MakeNumeric(4.0))
	if err := server.Update(grad, local); err != nil {
		t.Fatal(err)
	}

	// A first RMSProp step divides the gradient by
	// sqrt((1 - decay) * grad^2) plus the damping term.
	step := 0.1 * 4 / (math.Sqrt(0.01*16) + 1e-8)
	shared := server.Shared().AllParameters()
	for i, x := range vectorData(shared[3].Vector) {
		if !approxEqual(x, -step) {
			t.Errorf("bias %d: got %f but expected %f", i, x, -step)
		}
	}

	// The worker's copy must come back in sync.
	for i, x := range vectorData(local.Params[3].Vector) {
		got := vectorData(shared[3].Vector)[i]
		if !approxEqual(x, got) {
			t.Errorf("bias %d: local %f but shared %f", i, x, got)
		}
	}
}

func TestUpdateMovesAverageModel(t *testing.T) {
	c := anyvec64.CurrentCreator()
	agent := testAgent(c, 1, 1, 2, 0)
	opt := &RMSProp{StepSize: 0.1}
	server, err := NewParamServer(agent, opt, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	local, err := server.MakeLocal()
	if err != nil {
		t.Fatal(err)
	}

	grad := anydiff.NewGrad(local.Params...)
	grad[local.Params[3]].AddScalar(c.MakeNumeric(4.0))
	if err := server.Update(grad, local); err != nil {
		t.Fatal(err)
	}

	// The actor's weights stay zero, so the anchor's
	// logits equal its bias: decay * 0 plus (1 - decay)
	// times the updated bias.
	step := 0.1 * 4 / (math.Sqrt(0.01*16) + 1e-8)
	states := server.AverageStart()
	_, logits := server.StepAverage(states, makeVec(c, 0.5))
	for i, x := range vectorData(logits) {
		if !approxEqual(x, -0.1*step) {
			t.Errorf("anchor logit %d: got %f but expected %f",
				i, x, -0.1*step)
		}
	}
}
