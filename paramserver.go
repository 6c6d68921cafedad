package acer

import (
	"sync"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// DefaultAverageModelDecay is the rate at which the
// average model tracks worker models.
const DefaultAverageModelDecay = 0.99

// A ParamServer owns the globally shared model, the
// shared average model used as the trust-region anchor,
// and the shared optimizer state.
//
// Workers never touch the shared parameters directly;
// they interact through Sync, Update and StepAverage.
type ParamServer struct {
	mu sync.Mutex

	shared  *Agent
	average *Agent

	sharedParams  []*anydiff.Var
	averageParams []*anydiff.Var

	opt      *RMSProp
	avgDecay float64

	// GradNormHook, if non-nil, is called with the norm
	// of every gradient before it is applied.
	GradNormHook func(norm float64)
}

// NewParamServer creates a server around a canonical
// agent.
//
// The average model starts as a parameter-equal copy of
// the agent.
// The averageDecay argument is the fraction of the
// average model kept at each soft update; if 0,
// DefaultAverageModelDecay is used.
func NewParamServer(agent *Agent, opt *RMSProp,
	averageDecay float64) (server *ParamServer, err error) {
	defer essentials.AddCtxTo("new param server", &err)

	if averageDecay == 0 {
		averageDecay = DefaultAverageModelDecay
	}
	avg, err := agent.Copy()
	if err != nil {
		return nil, err
	}
	opt.Bind(agent.AllParameters())
	return &ParamServer{
		shared:        agent,
		average:       avg,
		sharedParams:  agent.AllParameters(),
		averageParams: avg.AllParameters(),
		opt:           opt,
		avgDecay:      averageDecay,
	}, nil
}

// Shared returns the canonical agent.
//
// The caller may inspect static fields, but must not
// touch the parameters without going through the server.
func (p *ParamServer) Shared() *Agent {
	return p.shared
}

// MakeLocal creates a worker-private copy of the shared
// agent.
// The copy's parameters never alias the shared ones.
func (p *ParamServer) MakeLocal() (*LocalAgent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	agent, err := p.shared.Copy()
	if err != nil {
		return nil, err
	}
	return &LocalAgent{Agent: agent, Params: agent.AllParameters()}, nil
}

// Sync hard-copies the shared parameters into a local
// agent.
func (p *ParamServer) Sync(local *LocalAgent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	CopyParams(local.Params, p.sharedParams)
}

// Update applies a worker's gradient.
//
// The gradient, keyed by the local agent's parameters, is
// re-keyed onto the shared parameters, transformed by the
// optimizer and applied.
// The updated parameters are then copied back into the
// local agent, and the average model is soft-updated
// toward them.
func (p *ParamServer) Update(grad anydiff.Grad, local *LocalAgent) (err error) {
	defer essentials.AddCtxTo("update params", &err)

	p.mu.Lock()
	defer p.mu.Unlock()

	sharedGrad := anydiff.Grad{}
	for i, localParam := range local.Params {
		if vec, ok := grad[localParam]; ok {
			sharedGrad[p.sharedParams[i]] = vec
		}
	}
	if len(sharedGrad) != len(grad) {
		panic("acer: gradient contains unknown parameters")
	}

	if p.GradNormHook != nil {
		p.GradNormHook(GradNorm(sharedGrad))
	}

	c := p.creator()
	step := p.opt.Transform(sharedGrad)
	step.Scale(c.MakeNumeric(-p.opt.stepSize()))
	step.AddToVars()

	CopyParams(local.Params, p.sharedParams)
	SoftCopyParams(p.averageParams, local.Params, 1-p.avgDecay)
	return nil
}

// AverageStart returns fresh recurrent states for the
// average model's base and actor blocks.
func (p *ParamServer) AverageStart() []anyrnn.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []anyrnn.State{p.average.Base.Start(1), p.average.Actor.Start(1)}
}

// StepAverage runs the average model forward on one
// observation and returns the follow-up states along
// with a detached copy of the logits.
//
// The average model is only ever read here; it is never
// trained by gradient descent.
func (p *ParamServer) StepAverage(states []anyrnn.State,
	obs anyvec.Vector) ([]anyrnn.State, anyvec.Vector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	baseOut := p.average.Base.Step(states[0], obs)
	actorOut := p.average.Actor.Step(states[1], baseOut.Output())
	newStates := []anyrnn.State{baseOut.State(), actorOut.State()}
	return newStates, actorOut.Output().Copy()
}

// LocalCopy returns a snapshot copy of the shared agent,
// suitable for evaluation or checkpointing.
func (p *ParamServer) LocalCopy() (*Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shared.Copy()
}

func (p *ParamServer) creator() anyvec.Creator {
	return p.sharedParams[0].Vector.Creator()
}

// CopyParams hard-copies parameter vectors from src to
// dst without aliasing any storage.
func CopyParams(dst, src []*anydiff.Var) {
	if len(dst) != len(src) {
		panic("acer: mismatched parameter lists")
	}
	for i, d := range dst {
		d.Vector.Set(src[i].Vector)
	}
}

// SoftCopyParams exponentially moves dst toward src:
//
//	dst <- dst*(1-tau) + src*tau
func SoftCopyParams(dst, src []*anydiff.Var, tau float64) {
	if len(dst) != len(src) {
		panic("acer: mismatched parameter lists")
	}
	if len(dst) == 0 {
		return
	}
	c := dst[0].Vector.Creator()
	for i, d := range dst {
		d.Vector.Scale(c.MakeNumeric(1 - tau))
		scaled := src[i].Vector.Copy()
		scaled.Scale(c.MakeNumeric(tau))
		d.Vector.Add(scaled)
	}
}
