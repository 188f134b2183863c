package gate

import (
	"testing"

	"birdgate/internal/features"
	"pgregory.net/rapid"
)

func TestEvaluateDecisionTable(t *testing.T) {
	thresholds := Thresholds{MinOverallRMSDB: -60, MinBirdSNRDB: 3}

	cases := []struct {
		name string
		f    features.AudioFeatures
		want Decision
	}{
		{"below noise floor", features.AudioFeatures{RMSTotalDB: -80, SNRBirdDB: 10}, Silence},
		{"at noise floor exactly", features.AudioFeatures{RMSTotalDB: -60, SNRBirdDB: 10}, SendToBirdNET},
		{"above floor, low SNR", features.AudioFeatures{RMSTotalDB: -30, SNRBirdDB: 1}, Trash},
		{"above floor, SNR at threshold", features.AudioFeatures{RMSTotalDB: -30, SNRBirdDB: 3}, SendToBirdNET},
		{"above floor, high SNR", features.AudioFeatures{RMSTotalDB: -20, SNRBirdDB: 12}, SendToBirdNET},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Evaluate(c.f, thresholds)
			if got.Decision != c.want {
				t.Errorf("Evaluate(%+v) = %v, want %v (reason: %s)", c.f, got.Decision, c.want, got.Reason)
			}
			if got.Reason == "" {
				t.Error("Reason must not be empty")
			}
		})
	}
}

// TestEvaluateIsPureAndTotal checks the decision-table invariant holds
// for arbitrary feature/threshold combinations: the three branches are
// mutually exclusive and exhaustive, and repeated evaluation is
// deterministic.
func TestEvaluateIsPureAndTotal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := features.AudioFeatures{
			RMSTotalDB: rapid.Float64Range(-200, 0).Draw(rt, "rmsTotal"),
			SNRBirdDB:  rapid.Float64Range(-100, 100).Draw(rt, "snr"),
		}
		th := Thresholds{
			MinOverallRMSDB: rapid.Float64Range(-200, 0).Draw(rt, "minRMS"),
			MinBirdSNRDB:    rapid.Float64Range(-50, 50).Draw(rt, "minSNR"),
		}

		r1 := Evaluate(f, th)
		r2 := Evaluate(f, th)
		if r1.Decision != r2.Decision {
			rt.Fatalf("Evaluate is not deterministic: %v != %v", r1.Decision, r2.Decision)
		}

		switch {
		case f.RMSTotalDB < th.MinOverallRMSDB:
			if r1.Decision != Silence {
				rt.Fatalf("expected SILENCE, got %v", r1.Decision)
			}
		case f.SNRBirdDB < th.MinBirdSNRDB:
			if r1.Decision != Trash {
				rt.Fatalf("expected TRASH, got %v", r1.Decision)
			}
		default:
			if r1.Decision != SendToBirdNET {
				rt.Fatalf("expected SEND_TO_BIRDNET, got %v", r1.Decision)
			}
		}
	})
}
