package acer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/unixpickle/anyvec"
)

// A Transition is one recorded environment step.
type Transition struct {
	State      anyvec.Vector
	Action     int
	Reward     float64
	NextState  anyvec.Vector
	NextAction int

	// Terminal indicates that NextState ended the
	// episode.
	Terminal bool

	// BehaviorProbs is the action distribution that was
	// active when the action was taken.
	// It may be stale relative to the current policy by
	// the time the transition is replayed.
	BehaviorProbs []float64
}

// A ReplayBuffer stores episodes of transitions and
// samples them for off-policy updates.
//
// One buffer is shared by every worker, so
// implementations must be safe for concurrent use and
// must keep each worker's episode in progress separate.
// A stored episode contains the transitions of a single
// rollout, in order.
type ReplayBuffer interface {
	// Append records a transition for the worker's
	// episode in progress.
	Append(workerID int, t *Transition)

	// StopCurrentEpisode finalizes the worker's episode
	// in progress.
	StopCurrentEpisode(workerID int)

	// SampleEpisodes samples up to count episodes, each
	// truncated to at most maxLen transitions.
	// If the buffer is empty, it returns nil.
	SampleEpisodes(count, maxLen int) [][]*Transition

	// Len returns the total number of stored
	// transitions.
	Len() int
}

// An EpisodicBuffer is an in-memory ReplayBuffer holding
// whole episodes, evicting the oldest episode once it is
// over capacity.
type EpisodicBuffer struct {
	mu sync.Mutex

	rng            *rand.Rand
	episodes       [][]*Transition
	current        map[int][]*Transition
	numTransitions int
	maxEpisodes    int
}

// NewEpisodicBuffer creates a buffer which retains at
// most maxEpisodes completed episodes.
func NewEpisodicBuffer(maxEpisodes int) *EpisodicBuffer {
	if maxEpisodes <= 0 {
		panic("acer: episode capacity must be positive")
	}
	return &EpisodicBuffer{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		current:     map[int][]*Transition{},
		maxEpisodes: maxEpisodes,
	}
}

// Append records a transition for the worker's episode
// in progress.
// Episodes of different workers never interleave.
func (e *EpisodicBuffer) Append(workerID int, t *Transition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current[workerID] = append(e.current[workerID], t)
}

// StopCurrentEpisode finalizes the worker's episode in
// progress.
// It is a no-op if the worker recorded no transitions
// since its last call.
func (e *EpisodicBuffer) StopCurrentEpisode(workerID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	episode := e.current[workerID]
	if len(episode) == 0 {
		return
	}
	delete(e.current, workerID)
	e.episodes = append(e.episodes, episode)
	e.numTransitions += len(episode)
	for len(e.episodes) > e.maxEpisodes {
		e.numTransitions -= len(e.episodes[0])
		e.episodes = e.episodes[1:]
	}
}

// SampleEpisodes samples episodes uniformly with
// replacement.
// Episodes longer than maxLen are truncated to a random
// contiguous window of maxLen transitions.
func (e *EpisodicBuffer) SampleEpisodes(count, maxLen int) [][]*Transition {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.episodes) == 0 {
		return nil
	}
	var res [][]*Transition
	for i := 0; i < count; i++ {
		ep := e.episodes[e.rng.Intn(len(e.episodes))]
		if maxLen > 0 && len(ep) > maxLen {
			start := e.rng.Intn(len(ep) - maxLen + 1)
			ep = ep[start : start+maxLen]
		}
		res = append(res, ep)
	}
	return res
}

// Len returns the total number of stored transitions.
func (e *EpisodicBuffer) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numTransitions
}
