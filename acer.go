package acer

import (
	"log"
	"sync"

	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/essentials"
)

// Default hyper-parameters, matching the values from the
// ACER paper for discrete action spaces.
const (
	DefaultPiLossCoef          = 1
	DefaultVLossCoef           = 0.5
	DefaultTruncationThreshold = 10
	DefaultTrustRegionDelta    = 1
	DefaultAverageDecay        = 0.999
)

// ACER holds the configuration for an instance of the
// training algorithm.
//
// One ACER value is shared by every worker.
type ACER struct {
	ParamServer *ParamServer

	// Replay is the source of off-policy episodes.
	//
	// If nil, no replay updates are performed.
	Replay ReplayBuffer

	// Logger, if non-nil, receives training events.
	Logger Logger

	// Horizon is the maximum number of steps between
	// on-policy updates, and the maximum length of a
	// replayed episode.
	Horizon int

	// Discount is the reward discount factor.
	//
	// If 0, then no discount is used.
	Discount float64

	// Beta is the entropy bonus coefficient.
	Beta float64

	// PiLossCoef and VLossCoef weight the policy and
	// value terms of the loss.
	//
	// If 0, DefaultPiLossCoef and DefaultVLossCoef are
	// used.
	PiLossCoef float64
	VLossCoef  float64

	// TruncationThreshold is the clip constant c for
	// truncated importance ratios.
	//
	// If 0, DefaultTruncationThreshold is used.
	TruncationThreshold float64

	// TrustRegionDelta is the radius of the trust
	// region around the average policy.
	//
	// If 0, DefaultTrustRegionDelta is used.
	TrustRegionDelta float64

	// ReplayRatio is the number of replay updates to
	// run after every on-policy update.
	ReplayRatio int

	// NoStepNormalization disables dividing the losses
	// by the number of steps in the update window.
	NoStepNormalization bool

	// ActDeterministically makes Act take the most
	// probable action instead of sampling.
	// It does not affect ActAndTrain.
	ActDeterministically bool

	// AverageValueDecay and AverageEntropyDecay control
	// the exponential moving averages reported by
	// Worker.Stats.
	//
	// If 0, DefaultAverageDecay is used.
	AverageValueDecay   float64
	AverageEntropyDecay float64
}

// Run trains with one worker per environment until the
// done channel is closed.
//
// If any environment produces an error, this stops and
// returns the error.
func (a *ACER) Run(envs []anyrl.Env, done <-chan struct{}) (err error) {
	defer essentials.AddCtxTo("run ACER", &err)

	errChan := make(chan error, len(envs))
	stopChan := make(chan struct{})

	var wg sync.WaitGroup
	for i, e := range envs {
		wg.Add(1)
		go func(i int, e anyrl.Env) {
			defer wg.Done()
			if err := a.runWorker(i, e, stopChan); err != nil {
				errChan <- err
			}
		}(i, e)
	}

	select {
	case err = <-errChan:
	case <-done:
	}
	close(stopChan)

	wg.Wait()
	return
}

func (a *ACER) runWorker(id int, env anyrl.Env, stopChan <-chan struct{}) error {
	w, err := a.NewWorker(id)
	if err != nil {
		return err
	}

	obs, err := env.Reset()
	if err != nil {
		return err
	}
	var reward float64
	for {
		select {
		case <-stopChan:
			return nil
		default:
		}

		action, err := w.ActAndTrain(obs, reward)
		if err != nil {
			return err
		}
		var done bool
		obs, reward, done, err = env.Step(oneHot(obs.Creator(),
			a.ParamServer.Shared().NumActions, action))
		if err != nil {
			return err
		}
		if done {
			if err := w.StopEpisodeAndTrain(obs, reward, true); err != nil {
				return err
			}
			if a.Logger != nil {
				a.Logger.LogEpisode(w.ID, w.RewardSum)
			}
			w.RewardSum = 0
			obs, err = env.Reset()
			if err != nil {
				return err
			}
			reward = 0
		}
	}
}

func (a *ACER) discount() float64 {
	if a.Discount == 0 {
		return 1
	}
	return a.Discount
}

func (a *ACER) piLossCoef() float64 {
	if a.PiLossCoef == 0 {
		return DefaultPiLossCoef
	}
	return a.PiLossCoef
}

func (a *ACER) vLossCoef() float64 {
	if a.VLossCoef == 0 {
		return DefaultVLossCoef
	}
	return a.VLossCoef
}

func (a *ACER) truncation() float64 {
	if a.TruncationThreshold == 0 {
		return DefaultTruncationThreshold
	}
	return a.TruncationThreshold
}

func (a *ACER) trustDelta() float64 {
	if a.TrustRegionDelta == 0 {
		return DefaultTrustRegionDelta
	}
	return a.TrustRegionDelta
}

func (a *ACER) valueDecay() float64 {
	if a.AverageValueDecay == 0 {
		return DefaultAverageDecay
	}
	return a.AverageValueDecay
}

func (a *ACER) entropyDecay() float64 {
	if a.AverageEntropyDecay == 0 {
		return DefaultAverageDecay
	}
	return a.AverageEntropyDecay
}

// A Logger receives events during training.
type Logger interface {
	// LogEpisode is called at the end of an episode
	// with the episode's total reward.
	LogEpisode(workerID int, reward float64)

	// LogUpdate is called after a gradient update with
	// the scalar losses that produced it.
	LogUpdate(workerID int, piLoss, vLoss float64)
}

// StandardLogger logs training events via the log
// package.
type StandardLogger struct {
	// Enable or disable different events.
	Episode bool
	Update  bool
}

// LogEpisode logs the end of an episode.
func (s *StandardLogger) LogEpisode(workerID int, reward float64) {
	if s.Episode {
		log.Printf("episode: worker=%d reward=%f", workerID, reward)
	}
}

// LogUpdate logs a gradient update.
func (s *StandardLogger) LogUpdate(workerID int, piLoss, vLoss float64) {
	if s.Update {
		log.Printf("update: worker=%d pi_loss=%f v_loss=%f", workerID,
			piLoss, vLoss)
	}
}
