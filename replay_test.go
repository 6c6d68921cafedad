package acer

import "testing"

func TestEpisodicBufferEmpty(t *testing.T) {
	buf := NewEpisodicBuffer(4)
	if buf.Len() != 0 {
		t.Errorf("got length %d for an empty buffer", buf.Len())
	}
	if eps := buf.SampleEpisodes(3, 5); eps != nil {
		t.Errorf("got %d episodes from an empty buffer", len(eps))
	}

	// An in-progress episode is not sampleable until it
	// is finalized.
	buf.Append(0, &Transition{Action: 1})
	if buf.Len() != 0 {
		t.Errorf("got length %d before the episode ended", buf.Len())
	}
	buf.StopCurrentEpisode(0)
	if buf.Len() != 1 {
		t.Errorf("got length %d but expected 1", buf.Len())
	}
}

func TestEpisodicBufferSampling(t *testing.T) {
	buf := NewEpisodicBuffer(4)
	for i := 0; i < 5; i++ {
		buf.Append(0, &Transition{Reward: float64(i)})
	}
	buf.StopCurrentEpisode(0)

	for i := 0; i < 20; i++ {
		eps := buf.SampleEpisodes(2, 3)
		if len(eps) != 2 {
			t.Fatalf("got %d episodes but expected 2", len(eps))
		}
		for _, ep := range eps {
			if len(ep) > 3 {
				t.Fatalf("got an episode of length %d", len(ep))
			}
			for j := 1; j < len(ep); j++ {
				if ep[j].Reward != ep[j-1].Reward+1 {
					t.Fatal("sampled window is not contiguous")
				}
			}
		}
	}
}

func TestEpisodicBufferEviction(t *testing.T) {
	buf := NewEpisodicBuffer(2)
	for episode := 0; episode < 3; episode++ {
		for i := 0; i <= episode; i++ {
			buf.Append(0, &Transition{Action: episode})
		}
		buf.StopCurrentEpisode(0)
	}

	// The first episode, with one transition, is gone.
	if buf.Len() != 5 {
		t.Errorf("got length %d but expected 5", buf.Len())
	}
	for i := 0; i < 20; i++ {
		for _, ep := range buf.SampleEpisodes(1, 0) {
			if ep[0].Action == 0 {
				t.Fatal("sampled an evicted episode")
			}
		}
	}
}

func TestEpisodicBufferPerWorker(t *testing.T) {
	buf := NewEpisodicBuffer(4)

	// Two workers record interleaved; each finalized
	// episode must hold only its own worker's steps, in
	// order.
	for i := 0; i < 3; i++ {
		buf.Append(0, &Transition{Action: 0, Reward: float64(i)})
		buf.Append(1, &Transition{Action: 1, Reward: float64(i)})
	}
	buf.StopCurrentEpisode(0)
	if buf.Len() != 3 {
		t.Fatalf("got length %d but expected 3", buf.Len())
	}
	buf.StopCurrentEpisode(1)
	if buf.Len() != 6 {
		t.Fatalf("got length %d but expected 6", buf.Len())
	}

	for i := 0; i < 20; i++ {
		ep := buf.SampleEpisodes(1, 0)[0]
		if len(ep) != 3 {
			t.Fatalf("got an episode of length %d", len(ep))
		}
		for j, trans := range ep {
			if trans.Action != ep[0].Action {
				t.Fatal("episode mixes transitions from different workers")
			}
			if trans.Reward != float64(j) {
				t.Fatal("episode transitions are out of order")
			}
		}
	}
}
