package winlog

import (
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/features"
)

// WindowRecord is a persisted window and the detections it produced. Its
// id is monotonically increasing within a backend and never reused (spec
// §3, §4.7).
//
// The two backends store AudioFeatures differently: the sqlite backend
// keeps them as flat columns of the windows table, while the jsonl backend
// writes them as a nested "features" object on each line. GetRecentWindows
// returns this same WindowRecord type from both backends, with the
// features always in the Features field, so callers see one shape; no
// flattened variant of WindowRecord is returned by either backend.
type WindowRecord struct {
	ID         int64
	Timestamp  time.Time
	SiteID     string
	StreamName string
	Features   features.AudioFeatures
	Decision   string
	Reason     string
	Detections []classifier.Detection
}
