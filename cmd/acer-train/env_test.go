package main

import (
	"math/rand"
	"testing"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestCartPoleEpisode(t *testing.T) {
	c := anyvec64.CurrentCreator()
	env := &CartPole{
		Creator:  c,
		MaxSteps: 50,
		Rand:     rand.New(rand.NewSource(42)),
	}

	obs, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if obs.Len() != obsSize {
		t.Fatalf("observation has %d components", obs.Len())
	}

	var total float64
	for i := 0; i < 200; i++ {
		obs, reward, done, err := env.Step(oneHot(c, i%numActions))
		if err != nil {
			t.Fatal(err)
		}
		if obs.Len() != obsSize {
			t.Fatalf("observation has %d components", obs.Len())
		}
		total += reward
		if done {
			break
		}
	}
	if total == 0 {
		t.Error("episode produced no reward")
	}

	// Resetting must start a fresh episode near the
	// upright state.
	obs, err = env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	data := obs.Creator().Float64Slice(obs.Data())
	for i, x := range data {
		if x < -0.05 || x > 0.05 {
			t.Errorf("state %d starts at %f", i, x)
		}
	}
}

func TestCartPoleTruncation(t *testing.T) {
	c := anyvec64.CurrentCreator()
	env := &CartPole{
		Creator:  c,
		MaxSteps: 3,
		Rand:     rand.New(rand.NewSource(7)),
	}
	if _, err := env.Reset(); err != nil {
		t.Fatal(err)
	}

	// Alternating pushes keep the pole up long enough to
	// hit the step limit.
	for i := 0; i < 3; i++ {
		_, _, done, err := env.Step(oneHot(c, i%2))
		if err != nil {
			t.Fatal(err)
		}
		if done != (i == 2) {
			t.Fatalf("step %d: done=%v", i, done)
		}
	}
}
