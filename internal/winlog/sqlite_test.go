package winlog

import (
	"path/filepath"
	"testing"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/features"
	"birdgate/internal/gate"
)

func TestSQLiteStoreReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winlog.db")

	s1, err := newSQLiteStore(path)
	if err != nil {
		t.Fatalf("newSQLiteStore: %v", err)
	}
	id, err := s1.LogWindow("site", "s", time.Now().UTC(), features.AudioFeatures{}, gate.Silence, "r", nil)
	if err != nil {
		t.Fatalf("LogWindow: %v", err)
	}
	s1.Close()

	s2, err := newSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen newSQLiteStore: %v", err)
	}
	defer s2.Close()

	recent, err := s2.GetRecentWindows("", "", 10)
	if err != nil {
		t.Fatalf("GetRecentWindows: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != id {
		t.Fatalf("recent = %+v, want single window with id %d", recent, id)
	}
}

func TestSQLiteStoreSpeciesSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winlog.db")
	s, err := newSQLiteStore(path)
	if err != nil {
		t.Fatalf("newSQLiteStore: %v", err)
	}
	defer s.Close()

	windows := []struct {
		dets []classifier.Detection
	}{
		{[]classifier.Detection{{Species: "Corvus corax", Confidence: 0.8}}},
		{[]classifier.Detection{{Species: "Corvus corax", Confidence: 0.95}}},
		{[]classifier.Detection{{Species: "Turdus migratorius", Confidence: 0.6}}},
	}
	for _, w := range windows {
		if _, err := s.LogWindow("site", "s", time.Now().UTC(), features.AudioFeatures{}, gate.SendToBirdNET, "r", w.dets); err != nil {
			t.Fatalf("LogWindow: %v", err)
		}
	}

	summary, err := s.GetSpeciesSummary("", time.Time{})
	if err != nil {
		t.Fatalf("GetSpeciesSummary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v, want 2 species", summary)
	}
	if summary[0].Species != "Corvus corax" || summary[0].DetectionCount != 2 {
		t.Fatalf("summary[0] = %+v, want Corvus corax with count 2", summary[0])
	}
	if summary[0].MaxConfidence != 0.95 {
		t.Fatalf("MaxConfidence = %v, want 0.95", summary[0].MaxConfidence)
	}
	if want := (0.8 + 0.95) / 2; summary[0].AvgConfidence != want {
		t.Fatalf("AvgConfidence = %v, want %v", summary[0].AvgConfidence, want)
	}
}

func TestSQLiteStoreLogWindowIsTransactional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winlog.db")
	s, err := newSQLiteStore(path)
	if err != nil {
		t.Fatalf("newSQLiteStore: %v", err)
	}
	defer s.Close()

	id, err := s.LogWindow("site", "s", time.Now().UTC(), features.AudioFeatures{}, gate.SendToBirdNET, "r",
		[]classifier.Detection{{Species: "a", Confidence: 0.5}, {Species: "b", Confidence: 0.6}})
	if err != nil {
		t.Fatalf("LogWindow: %v", err)
	}

	dets, err := s.GetDetectionsForWindow(id)
	if err != nil {
		t.Fatalf("GetDetectionsForWindow: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("dets = %+v, want 2 rows committed alongside the window row", dets)
	}
}
