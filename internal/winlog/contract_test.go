package winlog

import (
	"path/filepath"
	"testing"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/config"
	"birdgate/internal/features"
	"birdgate/internal/gate"
)

// newStoreForTest builds a Store for each backend rooted in a fresh temp
// directory, so both backends can be exercised through the same black-box
// contract below.
func newStoreForTest(t *testing.T, backend string) Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "winlog."+backend)

	s, err := New(config.StorageConfig{Backend: backend, Path: path})
	if err != nil {
		t.Fatalf("New(%s): %v", backend, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContractLogWindowRoundTrips(t *testing.T) {
	for _, backend := range []string{"sqlite", "jsonl"} {
		t.Run(backend, func(t *testing.T) {
			s := newStoreForTest(t, backend)

			f := features.AudioFeatures{RMSTotalDB: -40, RMSBirdBandDB: -30, RMSLowBandDB: -50, SNRBirdDB: 20}
			dets := []classifier.Detection{{Species: "Corvus corax", Confidence: 0.9, StartTime: 0, EndTime: 5}}

			id, err := s.LogWindow("site1", "stream1", time.Now().UTC(), f, gate.SendToBirdNET, "bird-band SNR clears floor", dets)
			if err != nil {
				t.Fatalf("LogWindow: %v", err)
			}
			if id < 1 {
				t.Fatalf("id = %d, want >= 1", id)
			}

			got, err := s.GetDetectionsForWindow(id)
			if err != nil {
				t.Fatalf("GetDetectionsForWindow: %v", err)
			}
			if len(got) != 1 || got[0].Species != "Corvus corax" {
				t.Fatalf("got %+v", got)
			}

			recent, err := s.GetRecentWindows("stream1", "", 10)
			if err != nil {
				t.Fatalf("GetRecentWindows: %v", err)
			}
			if len(recent) != 1 || recent[0].ID != id {
				t.Fatalf("recent = %+v", recent)
			}
		})
	}
}

// TestContractIDsAreStrictlyIncreasing checks the id invariant required
// by the concurrency model (spec §5): every LogWindow call returns an id
// larger than all previous ones, for both backends.
func TestContractIDsAreStrictlyIncreasing(t *testing.T) {
	for _, backend := range []string{"sqlite", "jsonl"} {
		t.Run(backend, func(t *testing.T) {
			s := newStoreForTest(t, backend)

			var lastID int64
			for i := 0; i < 20; i++ {
				id, err := s.LogWindow("site1", "stream1", time.Now().UTC(), features.AudioFeatures{}, gate.Silence, "quiet", nil)
				if err != nil {
					t.Fatalf("LogWindow #%d: %v", i, err)
				}
				if id <= lastID {
					t.Fatalf("id %d did not increase past previous id %d", id, lastID)
				}
				lastID = id
			}
		})
	}
}

// TestContractNonEmptyDetectionsImpliesSendToBirdNET is a sanity check on
// the invariant from spec.md §4's "detections non-empty => SEND_TO_BIRDNET"
// rule: the store itself never enforces it (the pipeline does), but a
// round trip must not corrupt the decision that was passed in.
func TestContractNonEmptyDetectionsImpliesSendToBirdNET(t *testing.T) {
	for _, backend := range []string{"sqlite", "jsonl"} {
		t.Run(backend, func(t *testing.T) {
			s := newStoreForTest(t, backend)
			dets := []classifier.Detection{{Species: "x", Confidence: 0.5}}
			id, err := s.LogWindow("site1", "s1", time.Now().UTC(), features.AudioFeatures{}, gate.SendToBirdNET, "r", dets)
			if err != nil {
				t.Fatalf("LogWindow: %v", err)
			}
			recent, err := s.GetRecentWindows("", "", 1)
			if err != nil {
				t.Fatalf("GetRecentWindows: %v", err)
			}
			if len(recent) != 1 || recent[0].ID != id {
				t.Fatalf("recent = %+v", recent)
			}
			if recent[0].Decision != gate.SendToBirdNET.String() {
				t.Fatalf("Decision = %q, want %q", recent[0].Decision, gate.SendToBirdNET.String())
			}
			if len(recent[0].Detections) != 1 {
				t.Fatalf("Detections = %+v, want 1 entry", recent[0].Detections)
			}
		})
	}
}

func TestContractDecisionStats(t *testing.T) {
	for _, backend := range []string{"sqlite", "jsonl"} {
		t.Run(backend, func(t *testing.T) {
			s := newStoreForTest(t, backend)
			decisions := []gate.Decision{gate.Silence, gate.Silence, gate.Trash, gate.SendToBirdNET}
			for _, d := range decisions {
				if _, err := s.LogWindow("site1", "s1", time.Now().UTC(), features.AudioFeatures{}, d, "r", nil); err != nil {
					t.Fatalf("LogWindow: %v", err)
				}
			}

			stats, err := s.GetDecisionStats("", time.Time{})
			if err != nil {
				t.Fatalf("GetDecisionStats: %v", err)
			}
			if stats.Silence != 2 || stats.Trash != 1 || stats.SendToBirdNET != 1 {
				t.Fatalf("stats = %+v", stats)
			}
		})
	}
}
