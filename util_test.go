package acer

import (
	"math"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// testAgent builds a small agent whose actor always
// produces zero logits and whose critic always produces
// qBias for every action, regardless of the observation.
//
// With those heads, V(s) is exactly qBias everywhere,
// which makes return targets easy to compute by hand.
func testAgent(c anyvec.Creator, obsSize, hidden, actions int,
	qBias float64) *Agent {
	critic := anynet.NewFCZero(c, hidden, actions)
	critic.Biases.Vector.AddScalar(c.MakeNumeric(qBias))
	return &Agent{
		Base: &anyrnn.LayerBlock{Layer: anynet.Net{
			anynet.NewFC(c, obsSize, hidden),
			anynet.Tanh,
		}},
		Actor: &anyrnn.LayerBlock{
			Layer: anynet.NewFCZero(c, hidden, actions),
		},
		Critic:     &anyrnn.LayerBlock{Layer: critic},
		NumActions: actions,
	}
}

func makeVec(c anyvec.Creator, vals ...float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(vals))
}

// recordSteps runs the agent over a sequence of
// observations the same way a worker does while acting,
// using the current policy itself as the anchor.
func recordSteps(agent *Agent, obsList []anyvec.Vector, actions []int,
	rewards []float64) []timestep {
	states := []anyrnn.State{
		agent.Base.Start(1),
		agent.Actor.Start(1),
		agent.Critic.Start(1),
	}
	var steps []timestep
	for i, obs := range obsList {
		baseOut := agent.Base.Step(states[0], obs)
		actorOut := agent.Actor.Step(states[1], baseOut.Output())
		criticOut := agent.Critic.Step(states[2], baseOut.Output())
		states = []anyrnn.State{baseOut.State(), actorOut.State(),
			criticOut.State()}
		steps = append(steps, timestep{
			Outs:      []anyrnn.Res{baseOut, actorOut, criticOut},
			Logits:    actorOut.Output().Copy(),
			QValues:   criticOut.Output().Copy(),
			AvgLogits: actorOut.Output().Copy(),
			Action:    actions[i],
			Reward:    rewards[i],
		})
	}
	return steps
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
