// Package acer implements Actor-Critic with Experience
// Replay for discrete action spaces, a Reinforcement
// Learning algorithm from https://arxiv.org/abs/1611.01224.
package acer

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Agent is a set of RNNs used to implement the actor and
// the critic.
//
// Inputs are all fed into Base.
// The output of Base is fed into Actor and Critic.
// The Actor produces unnormalized log-probabilities
// (logits) over the actions, and the Critic produces one
// Q-value estimate per action.
// The state value is derived from the two heads as
// V(s) = sum over a of softmax(logits)[a] * Q(s, a).
//
// The RNN blocks must work with serializer.Copy, since
// local copies of an agent are made for each worker and
// for the trust-region anchor.
type Agent struct {
	Base, Actor, Critic anyrnn.Block

	// NumActions is the size of the discrete action
	// space and thus the output size of both heads.
	NumActions int
}

// AllParameters finds all of the agent's parameters via
// anynet.AllParameters.
func (a *Agent) AllParameters() []*anydiff.Var {
	return anynet.AllParameters(a.Base, a.Actor, a.Critic)
}

// Copy produces a copy of the agent.
//
// The copy's parameters are value-equal to the original's
// but never share storage with it.
func (a *Agent) Copy() (*Agent, error) {
	res := &Agent{NumActions: a.NumActions}
	srcBlocks := []anyrnn.Block{a.Base, a.Actor, a.Critic}
	dstBlocks := []*anyrnn.Block{&res.Base, &res.Actor, &res.Critic}
	for i, src := range srcBlocks {
		copied, err := serializer.Copy(src)
		if err != nil {
			name := []string{"base", "actor", "critic"}
			return nil, essentials.AddCtx("copy agent "+name[i], err)
		}
		*dstBlocks[i] = copied.(anyrnn.Block)
	}
	return res, nil
}

// A LocalAgent is a worker's private copy of a global
// agent.
type LocalAgent struct {
	*Agent

	// Params indicates which parameters in the RNNs to
	// optimize.
	//
	// The order here matters, as it makes it possible
	// to map between global and local parameters.
	Params []*anydiff.Var
}
