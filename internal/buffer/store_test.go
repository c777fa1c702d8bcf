package buffer

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// storedEpisode builds an episode whose observation at step t is {t} and
// whose latents are one-hot at class 0.
func storedEpisode(id string, n int) *Episode {
	tr := Trajectory{EpisodeID: id}
	for i := 0; i < n; i++ {
		tr.Steps = append(tr.Steps, Step{
			Obs:    []float64{float64(i)},
			Action: []float64{0},
			Reward: 1,
			Done:   i == n-1,
		})
	}
	ep := EpisodeFromTrajectory(tr)
	for i := 0; i < n; i++ {
		ep.Latents = append(ep.Latents, [][]float64{{1, 0}})
	}
	return ep
}

func TestEpisodeFromTrajectory(t *testing.T) {
	ep := storedEpisode("e", 3)
	if diff := cmp.Diff([]float64{1, 1, 0}, ep.Continuations); diff != "" {
		t.Errorf("continuations (-want +got):\n%s", diff)
	}
	if ep.Len() != 3 || ep.ID != "e" {
		t.Errorf("episode %s has length %d", ep.ID, ep.Len())
	}
}

func TestEpisodeStoreEvictsOldest(t *testing.T) {
	s, err := NewEpisodeStore(10)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Add(storedEpisode(id, 4)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 2 || s.Steps() != 8 {
		t.Fatalf("store holds %d episodes, %d steps; want 2, 8", s.Len(), s.Steps())
	}
	if err := s.StoreLatents("a", 0, nil); !errors.Is(err, ErrUnknownEpisode) {
		t.Errorf("evicted episode still present: %v", err)
	}
	if err := s.Add(storedEpisode("b", 2)); err == nil {
		t.Error("duplicate id accepted")
	}
	if err := s.Add(&Episode{ID: "x", Observations: [][]float64{{0}}}); err == nil {
		t.Error("episode without latents accepted")
	}
}

func TestSampleWindows(t *testing.T) {
	s, err := NewEpisodeStore(100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SampleWindows(1, 3, rand.New(rand.NewSource(1))); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("empty store: got %v", err)
	}
	_ = s.Add(storedEpisode("short", 2))
	_ = s.Add(storedEpisode("long", 6))

	ws, err := s.SampleWindows(50, 3, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range ws {
		if w.EpisodeID != "long" {
			t.Fatalf("sampled window from %s shorter than the window", w.EpisodeID)
		}
		if w.Start < 0 || w.Start > 3 {
			t.Fatalf("start %d out of range", w.Start)
		}
		want := [][]float64{{float64(w.Start)}, {float64(w.Start + 1)}, {float64(w.Start + 2)}}
		if diff := cmp.Diff(want, w.Observations); diff != "" {
			t.Errorf("observations (-want +got):\n%s", diff)
		}
		if len(w.Actions) != 3 || len(w.Rewards) != 3 || len(w.Continuations) != 3 || len(w.Latents) != 3 {
			t.Errorf("ragged window %+v", w)
		}
	}
}

func TestStoreLatentsRoundTrip(t *testing.T) {
	s, err := NewEpisodeStore(100)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Add(storedEpisode("e", 3))

	updated := [][][]float64{{{0, 1}}, {{0, 1}}}
	if err := s.StoreLatents("e", 1, updated); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreLatents("e", 2, updated); err == nil {
		t.Error("latents past the episode end accepted")
	}

	ws, err := s.SampleWindows(1, 3, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	want := [][][]float64{{{1, 0}}, {{0, 1}}, {{0, 1}}}
	if diff := cmp.Diff(want, ws[0].Latents); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	// Windows are copies.
	ws[0].Latents[0][0][0] = 42
	again, _ := s.SampleWindows(1, 3, rand.New(rand.NewSource(3)))
	if again[0].Latents[0][0][0] != 1 {
		t.Error("window shares memory with the store")
	}
}
