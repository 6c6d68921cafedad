// Command acer-train trains a pole-balancing agent with
// ACER and periodically checkpoints the shared model.
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	acer "acer-agent"

	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
	"gonum.org/v1/gonum/stat"
)

const (
	obsSize    = 4
	numActions = 2
)

type Flags struct {
	NumParallel int
	Horizon     int
	Discount    float64
	Step        float64
	EntropyReg  float64
	Delta       float64
	ReplayRatio int
	ReplaySize  int
	AvgDecay    float64
	Hidden      int
	LSTM        bool
	MaxSteps    int
	OutDir      string
	SaveTime    time.Duration
	Eval        bool
}

func (f *Flags) Add(fs *flag.FlagSet) {
	fs.IntVar(&f.NumParallel, "numparallel", 8, "parallel workers")
	fs.IntVar(&f.Horizon, "horizon", 20, "steps between on-policy updates")
	fs.Float64Var(&f.Discount, "discount", 0.99, "reward discount factor")
	fs.Float64Var(&f.Step, "step", 1e-4, "RMSProp step size")
	fs.Float64Var(&f.EntropyReg, "entropyreg", 0.01, "entropy bonus coefficient")
	fs.Float64Var(&f.Delta, "delta", 1, "trust region radius")
	fs.IntVar(&f.ReplayRatio, "replayratio", 4, "replay updates per on-policy update")
	fs.IntVar(&f.ReplaySize, "replaysize", 512, "replay capacity in episodes")
	fs.Float64Var(&f.AvgDecay, "avgdecay", 0.99, "average model decay")
	fs.IntVar(&f.Hidden, "hidden", 32, "hidden layer size")
	fs.BoolVar(&f.LSTM, "lstm", false, "use a recurrent base network")
	fs.IntVar(&f.MaxSteps, "maxsteps", 500, "max time steps per episode")
	fs.StringVar(&f.OutDir, "out", "trained_acer", "checkpoint directory")
	fs.DurationVar(&f.SaveTime, "savetime", time.Minute, "time between checkpoints")
	fs.BoolVar(&f.Eval, "eval", false, "run deterministic evaluation episodes")
}

func main() {
	creator := anyvec32.CurrentCreator()

	fs := flag.NewFlagSet("acer-train", flag.ExitOnError)
	flags := &Flags{}
	flags.Add(fs)
	fs.Parse(os.Args[1:])

	agent := createAgent(creator, flags)
	opt := &acer.RMSProp{StepSize: flags.Step}
	server, err := acer.NewParamServer(agent, opt, flags.AvgDecay)
	if err != nil {
		essentials.Die(err)
	}
	if _, statErr := os.Stat(flags.OutDir); statErr == nil {
		log.Println("Loading checkpoint from", flags.OutDir)
		if err := server.Load(flags.OutDir); err != nil {
			essentials.Die(err)
		}
	}

	conf := &acer.ACER{
		ParamServer:          server,
		Replay:               acer.NewEpisodicBuffer(flags.ReplaySize),
		Logger:               newBatchLogger(32),
		Horizon:              flags.Horizon,
		Discount:             flags.Discount,
		Beta:                 flags.EntropyReg,
		TrustRegionDelta:     flags.Delta,
		ReplayRatio:          flags.ReplayRatio,
		ActDeterministically: flags.Eval,
	}

	if flags.Eval {
		evaluate(conf, flags)
		return
	}

	var envs []anyrl.Env
	for i := 0; i < flags.NumParallel; i++ {
		envs = append(envs, &CartPole{
			Creator:  creator,
			MaxSteps: flags.MaxSteps,
			Rand:     rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
		})
	}

	trainEnd := rip.NewRIP()

	saveDone := make(chan struct{})
	go func() {
		defer close(saveDone)
		for {
			select {
			case <-time.After(flags.SaveTime):
			case <-trainEnd.Chan():
				if err := server.Save(flags.OutDir); err != nil {
					essentials.Die(err)
				}
				return
			}
			if err := server.Save(flags.OutDir); err != nil {
				essentials.Die(err)
			}
		}
	}()

	log.Println("Running ACER. Press Ctrl+C to stop.")
	if err := conf.Run(envs, trainEnd.Chan()); err != nil {
		essentials.Die(err)
	}

	log.Println("Waiting for checkpoint to save...")
	<-saveDone
}

// evaluate runs deterministic episodes without training.
func evaluate(conf *acer.ACER, flags *Flags) {
	worker, err := conf.NewWorker(0)
	if err != nil {
		essentials.Die(err)
	}
	env := &CartPole{
		Creator:  anyvec32.CurrentCreator(),
		MaxSteps: flags.MaxSteps,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	creator := anyvec32.CurrentCreator()
	evalEnd := rip.NewRIP()
	for {
		select {
		case <-evalEnd.Chan():
			return
		default:
		}

		obs, err := env.Reset()
		if err != nil {
			essentials.Die(err)
		}
		var total float64
		for {
			action := worker.Act(obs)
			var reward float64
			var done bool
			obs, reward, done, err = env.Step(oneHot(creator, action))
			if err != nil {
				essentials.Die(err)
			}
			total += reward
			if done {
				break
			}
		}
		worker.StopEpisode()
		log.Printf("evaluation episode: reward=%f", total)
	}
}

func createAgent(c anyvec.Creator, flags *Flags) *acer.Agent {
	var base anyrnn.Block
	if flags.LSTM {
		base = anyrnn.NewLSTM(c, obsSize, flags.Hidden)
	} else {
		base = &anyrnn.LayerBlock{
			Layer: anynet.Net{
				anynet.NewFC(c, obsSize, flags.Hidden),
				anynet.Tanh,
			},
		}
	}
	return &acer.Agent{
		Base: base,
		Actor: &anyrnn.LayerBlock{
			Layer: anynet.NewFCZero(c, flags.Hidden, numActions),
		},
		Critic: &anyrnn.LayerBlock{
			Layer: anynet.NewFCZero(c, flags.Hidden, numActions),
		},
		NumActions: numActions,
	}
}

func oneHot(c anyvec.Creator, action int) anyvec.Vector {
	data := make([]float64, numActions)
	data[action] = 1
	return c.MakeVectorData(c.MakeNumericList(data))
}

// batchLogger aggregates episode rewards and logs batch
// statistics.
type batchLogger struct {
	mu      sync.Mutex
	rewards []float64
	every   int
	updates int
}

func newBatchLogger(every int) *batchLogger {
	return &batchLogger{every: every}
}

func (b *batchLogger) LogEpisode(workerID int, reward float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rewards = append(b.rewards, reward)
	if len(b.rewards) >= b.every {
		log.Printf("episodes: mean=%f stddev=%f",
			stat.Mean(b.rewards, nil), stat.StdDev(b.rewards, nil))
		b.rewards = b.rewards[:0]
	}
}

func (b *batchLogger) LogUpdate(workerID int, piLoss, vLoss float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	if b.updates%256 == 0 {
		log.Printf("update %d: pi_loss=%f v_loss=%f", b.updates, piLoss, vLoss)
	}
}
