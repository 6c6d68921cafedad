package acer

import (
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
)

// A timestep records everything the update engine needs
// about a single step of experience.
type timestep struct {
	// Outs holds the live forward results, in the order
	// base, actor, critic.
	// Gradients reach the model parameters by
	// propagating through these.
	Outs []anyrnn.Res

	// Detached copies of the head outputs.
	Logits    anyvec.Vector
	QValues   anyvec.Vector
	AvgLogits anyvec.Vector

	Action  int
	Reward  float64
	Value   float64
	Entropy float64
}

// A window is the rolling on-policy record of the steps
// since the last update.
//
// Its backing array is allocated once at the configured
// horizon and reset by truncation, never reallocated.
type window struct {
	steps  []timestep
	tStart int
}

func newWindow(horizon int) *window {
	return &window{steps: make([]timestep, 0, horizon)}
}

func (w *window) Len() int {
	return len(w.steps)
}

// Append records a step.
// It panics if the window is already at capacity, since
// an update must run before any further acting.
func (w *window) Append(s timestep) {
	if len(w.steps) == cap(w.steps) {
		panic("acer: trajectory window overflow")
	}
	w.steps = append(w.steps, s)
}

// SetLastReward records the reward observed one step
// after the most recent recorded step.
// It is a no-op when the window is empty, which happens
// right after an update has consumed the step the reward
// belongs to.
func (w *window) SetLastReward(r float64) {
	if len(w.steps) > 0 {
		w.steps[len(w.steps)-1].Reward = r
	}
}

// Reset clears the window and re-bases its start time,
// severing the update's view into any earlier forward
// results.
func (w *window) Reset(now int) {
	for i := range w.steps {
		w.steps[i] = timestep{}
	}
	w.steps = w.steps[:0]
	w.tStart = now
}
