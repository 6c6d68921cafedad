package acer

import (
	"math/rand"
	"time"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// Stats are running statistics about a worker.
type Stats struct {
	AverageValue   float64
	AverageEntropy float64
}

// A Worker drives one environment interaction loop with
// its own private copy of the model.
//
// A Worker is not safe for concurrent use; it belongs to
// exactly one goroutine.
// Workers only share state through the parameter server
// and, optionally, the replay buffer.
type Worker struct {
	ID    int
	Agent *LocalAgent

	// RewardSum is the total undiscounted reward of the
	// episode in progress.
	// The caller may reset it between episodes.
	RewardSum float64

	conf *ACER
	rng  *rand.Rand

	window *window
	t      int

	// Recurrent state in the order base, actor, critic.
	states    []anyrnn.State
	avgStates []anyrnn.State

	lastState    anyvec.Vector
	lastAction   int
	lastBehavior []float64
	hasLast      bool

	averageValue   float64
	averageEntropy float64
}

// NewWorker creates a worker with a private copy of the
// shared model.
func (a *ACER) NewWorker(id int) (w *Worker, err error) {
	defer essentials.AddCtxTo("new worker", &err)

	if a.Horizon <= 0 {
		panic("acer: Horizon must be positive")
	}
	local, err := a.ParamServer.MakeLocal()
	if err != nil {
		return nil, err
	}
	res := &Worker{
		ID:     id,
		Agent:  local,
		conf:   a,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)<<32)),
		window: newWindow(a.Horizon),
	}
	res.resetState()
	return res, nil
}

// Act chooses an action without recording anything and
// without tracking gradients.
//
// If the configuration sets ActDeterministically, the
// most probable action is returned; otherwise an action
// is sampled.
func (w *Worker) Act(obs anyvec.Vector) int {
	outs := w.step(obs)
	dist := NewDist(anydiff.NewConst(outs[1].Output().Copy()))
	if w.conf.ActDeterministically {
		return dist.MostProbable()
	}
	return dist.Sample(w.rng)
}

// ActAndTrain chooses an action while recording the step
// for training.
//
// The reward argument is the reward for the previous
// action; it is ignored on the first step of an episode.
// When the trajectory window reaches the horizon, an
// on-policy update and the configured number of replay
// updates run before acting.
func (w *Worker) ActAndTrain(obs anyvec.Vector, reward float64) (action int, err error) {
	defer essentials.AddCtxTo("act and train", &err)

	w.RewardSum += reward
	w.window.SetLastReward(reward)

	if w.window.Len() == w.conf.Horizon {
		if err := w.updateOnPolicy(obs); err != nil {
			return 0, err
		}
		for i := 0; i < w.conf.ReplayRatio; i++ {
			if err := w.updateFromReplay(); err != nil {
				return 0, err
			}
		}
	}

	outs := w.step(obs)
	logits := outs[1].Output().Copy()
	qValues := outs[2].Output().Copy()
	var avgLogits anyvec.Vector
	w.avgStates, avgLogits = w.conf.ParamServer.StepAverage(w.avgStates, obs)

	dist := NewDist(anydiff.NewConst(logits))
	actionValue := &ActionValue{QValues: anydiff.NewConst(qValues)}
	action = dist.Sample(w.rng)
	value := scalarValue(actionValue.V(dist))
	entropy := scalarValue(dist.Entropy())

	w.window.Append(timestep{
		Outs:      outs,
		Logits:    logits,
		QValues:   qValues,
		AvgLogits: avgLogits,
		Action:    action,
		Value:     value,
		Entropy:   entropy,
	})
	w.t++

	w.averageValue += (1 - w.conf.valueDecay()) * (value - w.averageValue)
	w.averageEntropy += (1 - w.conf.entropyDecay()) * (entropy - w.averageEntropy)

	if w.conf.Replay != nil && w.hasLast {
		w.conf.Replay.Append(w.ID, &Transition{
			State:         w.lastState,
			Action:        w.lastAction,
			Reward:        reward,
			NextState:     obs.Copy(),
			NextAction:    action,
			BehaviorProbs: w.lastBehavior,
		})
	}
	w.lastState = obs.Copy()
	w.lastAction = action
	w.lastBehavior = dist.ProbsData()
	w.hasLast = true

	return action, nil
}

// StopEpisodeAndTrain finalizes the episode with the
// reward for the last action and forces an update.
//
// The done argument distinguishes a terminal state from a
// truncated episode; a truncated episode still bootstraps
// from the final state's value estimate.
//
// It panics if no training step preceded it, which is a
// programming error in the driving loop.
func (w *Worker) StopEpisodeAndTrain(state anyvec.Vector, reward float64,
	done bool) (err error) {
	defer essentials.AddCtxTo("stop episode and train", &err)

	if !w.hasLast {
		panic("acer: StopEpisodeAndTrain without a preceding step")
	}

	w.RewardSum += reward
	w.window.SetLastReward(reward)

	var bootstrapState anyvec.Vector
	if !done {
		bootstrapState = state
	}
	if err := w.updateOnPolicy(bootstrapState); err != nil {
		return err
	}
	for i := 0; i < w.conf.ReplayRatio; i++ {
		if err := w.updateFromReplay(); err != nil {
			return err
		}
	}

	w.resetState()

	if w.conf.Replay != nil {
		w.conf.Replay.Append(w.ID, &Transition{
			State:         w.lastState,
			Action:        w.lastAction,
			Reward:        reward,
			NextState:     state.Copy(),
			NextAction:    w.lastAction,
			Terminal:      done,
			BehaviorProbs: w.lastBehavior,
		})
		w.conf.Replay.StopCurrentEpisode(w.ID)
	}

	w.lastState = nil
	w.lastBehavior = nil
	w.hasLast = false
	return nil
}

// StopEpisode resets the recurrent state without
// training, for use after evaluation episodes.
func (w *Worker) StopEpisode() {
	w.resetState()
}

// Stats returns the worker's running statistics.
func (w *Worker) Stats() Stats {
	return Stats{
		AverageValue:   w.averageValue,
		AverageEntropy: w.averageEntropy,
	}
}

// updateOnPolicy runs an update over the current window.
//
// If bootstrapState is non-nil, the return is
// bootstrapped from the model's value estimate for it;
// otherwise the final step is treated as terminal.
func (w *Worker) updateOnPolicy(bootstrapState anyvec.Vector) error {
	if w.window.Len() == 0 {
		panic("acer: on-policy update with an empty window")
	}

	var bootstrap float64
	if bootstrapState != nil {
		bootstrap = w.peekValue(bootstrapState)
	}

	batch := &updateBatch{Steps: w.window.steps, Bootstrap: bootstrap}
	grad, piLoss, vLoss := w.conf.computeUpdate(batch, w.Agent.Params)
	if err := w.conf.ParamServer.Update(grad, w.Agent); err != nil {
		return err
	}
	if w.conf.Logger != nil {
		w.conf.Logger.LogUpdate(w.ID, piLoss, vLoss)
	}

	// Dropping the window also severs the recorded
	// computation graphs, bounding memory for recurrent
	// models.
	w.window.Reset(w.t)
	return nil
}

// updateFromReplay samples one episode from the replay
// buffer and runs an importance-corrected update over it.
// It is a no-op when the buffer is empty.
func (w *Worker) updateFromReplay() error {
	if w.conf.Replay == nil || w.conf.Replay.Len() == 0 {
		return nil
	}
	episodes := w.conf.Replay.SampleEpisodes(1, w.conf.Horizon+1)
	if len(episodes) == 0 {
		return nil
	}
	episode := episodes[0]

	// The episode is replayed on fresh recurrent state;
	// the acting state is left untouched.
	states := []anyrnn.State{
		w.Agent.Base.Start(1),
		w.Agent.Actor.Start(1),
		w.Agent.Critic.Start(1),
	}
	avgStates := w.conf.ParamServer.AverageStart()

	steps := make([]timestep, 0, len(episode))
	rho := make([]float64, len(episode))
	rhoAll := make([][]float64, len(episode))
	for t, trans := range episode {
		baseOut := w.Agent.Base.Step(states[0], trans.State)
		actorOut := w.Agent.Actor.Step(states[1], baseOut.Output())
		criticOut := w.Agent.Critic.Step(states[2], baseOut.Output())
		states = []anyrnn.State{baseOut.State(), actorOut.State(),
			criticOut.State()}

		logits := actorOut.Output().Copy()
		qValues := criticOut.Output().Copy()
		var avgLogits anyvec.Vector
		avgStates, avgLogits = w.conf.ParamServer.StepAverage(avgStates,
			trans.State)

		dist := NewDist(anydiff.NewConst(logits))
		probs := dist.ProbsData()
		mu := trans.BehaviorProbs
		if mu[trans.Action] > 0 {
			rho[t] = probs[trans.Action] / mu[trans.Action]
		}
		all := make([]float64, len(probs))
		for a := range probs {
			if mu[a] > 0 {
				all[a] = probs[a] / mu[a]
			}
		}
		rhoAll[t] = all

		steps = append(steps, timestep{
			Outs:      []anyrnn.Res{baseOut, actorOut, criticOut},
			Logits:    logits,
			QValues:   qValues,
			AvgLogits: avgLogits,
			Action:    trans.Action,
			Reward:    trans.Reward,
		})
	}

	last := episode[len(episode)-1]
	var bootstrap float64
	if !last.Terminal {
		bootstrap = w.valueOf(states, last.NextState)
	}

	batch := &updateBatch{
		Steps:     steps,
		Rho:       rho,
		RhoAll:    rhoAll,
		Bootstrap: bootstrap,
	}
	grad, piLoss, vLoss := w.conf.computeUpdate(batch, w.Agent.Params)
	if err := w.conf.ParamServer.Update(grad, w.Agent); err != nil {
		return err
	}
	if w.conf.Logger != nil {
		w.conf.Logger.LogUpdate(w.ID, piLoss, vLoss)
	}
	return nil
}

// step applies the model to an observation and advances
// the acting recurrent state.
func (w *Worker) step(obs anyvec.Vector) []anyrnn.Res {
	baseOut := w.Agent.Base.Step(w.states[0], obs)
	actorOut := w.Agent.Actor.Step(w.states[1], baseOut.Output())
	criticOut := w.Agent.Critic.Step(w.states[2], baseOut.Output())
	w.states = []anyrnn.State{baseOut.State(), actorOut.State(),
		criticOut.State()}
	return []anyrnn.Res{baseOut, actorOut, criticOut}
}

// peekValue estimates the state value without advancing
// the acting recurrent state.
func (w *Worker) peekValue(obs anyvec.Vector) float64 {
	return w.valueOf(w.states, obs)
}

func (w *Worker) valueOf(states []anyrnn.State, obs anyvec.Vector) float64 {
	baseOut := w.Agent.Base.Step(states[0], obs)
	actorOut := w.Agent.Actor.Step(states[1], baseOut.Output())
	criticOut := w.Agent.Critic.Step(states[2], baseOut.Output())
	dist := NewDist(anydiff.NewConst(actorOut.Output().Copy()))
	actionValue := &ActionValue{
		QValues: anydiff.NewConst(criticOut.Output().Copy()),
	}
	return scalarValue(actionValue.V(dist))
}

// resetState resets the recurrent state of the private
// model and of the worker's view of the average model.
func (w *Worker) resetState() {
	w.states = []anyrnn.State{
		w.Agent.Base.Start(1),
		w.Agent.Actor.Start(1),
		w.Agent.Critic.Start(1),
	}
	w.avgStates = w.conf.ParamServer.AverageStart()
}
