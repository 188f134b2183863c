package classifier

import (
	"sort"
	"testing"

	"pgregory.net/rapid"
)

func TestPostProcessFiltersSortsTruncates(t *testing.T) {
	in := []Detection{
		{Species: "a", Confidence: 0.2},
		{Species: "b", Confidence: 0.9},
		{Species: "c", Confidence: 0.05},
		{Species: "d", Confidence: 0.5},
	}
	got := postProcess(in, 0.1, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Species != "b" || got[1].Species != "d" {
		t.Fatalf("got %+v, want [b d] order", got)
	}
}

func TestPostProcessNoTruncationWhenTopNZero(t *testing.T) {
	in := []Detection{{Species: "a", Confidence: 0.5}, {Species: "b", Confidence: 0.6}}
	got := postProcess(in, 0, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

// TestPostProcessInvariant checks spec §4.6's contract holds for
// arbitrary detection sets: every kept detection clears minConfidence,
// the result is sorted descending, and its length never exceeds topN.
func TestPostProcessInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(rt, "n")
		dets := make([]Detection, n)
		for i := range dets {
			dets[i] = Detection{
				Species:    rapid.StringMatching(`[a-z]{3}`).Draw(rt, "species"),
				Confidence: rapid.Float64Range(0, 1).Draw(rt, "confidence"),
			}
		}
		minConf := rapid.Float64Range(0, 1).Draw(rt, "minConf")
		topN := rapid.IntRange(0, 10).Draw(rt, "topN")

		got := postProcess(dets, minConf, topN)

		if topN > 0 && len(got) > topN {
			rt.Fatalf("len(got) = %d exceeds topN %d", len(got), topN)
		}
		for _, d := range got {
			if d.Confidence < minConf {
				rt.Fatalf("detection %+v below minConfidence %v", d, minConf)
			}
		}
		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Confidence > got[j].Confidence }) {
			rt.Fatalf("result not sorted descending: %+v", got)
		}
	})
}
