package winlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/features"
	"birdgate/internal/gate"
)

// jsonlRecord is the on-disk shape of one line: AudioFeatures nests under
// "features" rather than flattening to top-level fields, unlike the
// sqlite backend's row shape (see record.go).
type jsonlRecord struct {
	ID         int64                  `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	SiteID     string                 `json:"site_id"`
	StreamName string                 `json:"stream_name"`
	Features   features.AudioFeatures `json:"features"`
	Decision   string                 `json:"decision"`
	Reason     string                 `json:"reason"`
	Detections []classifier.Detection `json:"detections"`
}

// jsonlStore appends one JSON object per line to a flat file. A single
// mutex guards both the in-memory id counter and the append so the two
// never drift apart under concurrent writers (spec §4.7.2, §5).
type jsonlStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	nextID int64
}

func newJSONLStore(path string) (*jsonlStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("winlog: open jsonl store: %w", err)
	}

	var maxID int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			slog.Default().Warn("winlog: skipping malformed jsonl line", "error", err)
			continue
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("winlog: scan jsonl store: %w", err)
	}

	return &jsonlStore{path: path, file: f, nextID: maxID + 1}, nil
}

func (s *jsonlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *jsonlStore) LogWindow(siteID, streamName string, timestamp time.Time, f features.AudioFeatures, decision gate.Decision, reason string, dets []classifier.Detection) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := jsonlRecord{
		ID:         s.nextID,
		Timestamp:  timestamp.UTC(),
		SiteID:     siteID,
		StreamName: streamName,
		Features:   f,
		Decision:   decision.String(),
		Reason:     reason,
		Detections: dets,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return 0, err
	}

	s.nextID++
	return rec.ID, nil
}

// readAll re-opens and fully re-scans the file, skipping malformed lines
// with a logged warning (spec §4.7.2).
func (s *jsonlStore) readAll() ([]jsonlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []jsonlRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			slog.Default().Warn("winlog: skipping malformed jsonl line", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func (s *jsonlStore) GetRecentWindows(streamName, decision string, limit int) ([]WindowRecord, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })

	var out []WindowRecord
	for _, rec := range records {
		if streamName != "" && rec.StreamName != streamName {
			continue
		}
		if decision != "" && rec.Decision != decision {
			continue
		}
		out = append(out, toWindowRecord(rec))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *jsonlStore) GetDetectionsForWindow(windowID int64) ([]classifier.Detection, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == windowID {
			dets := append([]classifier.Detection(nil), rec.Detections...)
			sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
			return dets, nil
		}
	}
	return nil, nil
}

func (s *jsonlStore) GetSpeciesSummary(streamName string, since time.Time) ([]SpeciesSummary, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}

	type accum struct {
		count     int
		maxConf   float64
		totalConf float64
	}
	bySpecies := make(map[string]*accum)

	for _, rec := range records {
		if streamName != "" && rec.StreamName != streamName {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		for _, d := range rec.Detections {
			a, ok := bySpecies[d.Species]
			if !ok {
				a = &accum{}
				bySpecies[d.Species] = a
			}
			a.count++
			a.totalConf += d.Confidence
			if d.Confidence > a.maxConf {
				a.maxConf = d.Confidence
			}
		}
	}

	summaries := make([]SpeciesSummary, 0, len(bySpecies))
	for species, a := range bySpecies {
		summaries = append(summaries, SpeciesSummary{
			Species:        species,
			DetectionCount: a.count,
			MaxConfidence:  a.maxConf,
			AvgConfidence:  a.totalConf / float64(a.count),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].DetectionCount > summaries[j].DetectionCount })
	return summaries, nil
}

func (s *jsonlStore) GetDecisionStats(streamName string, since time.Time) (DecisionStats, error) {
	records, err := s.readAll()
	if err != nil {
		return DecisionStats{}, err
	}

	var stats DecisionStats
	for _, rec := range records {
		if streamName != "" && rec.StreamName != streamName {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		switch rec.Decision {
		case "SILENCE":
			stats.Silence++
		case "TRASH":
			stats.Trash++
		case "SEND_TO_BIRDNET":
			stats.SendToBirdNET++
		}
	}
	return stats, nil
}

func toWindowRecord(rec jsonlRecord) WindowRecord {
	return WindowRecord{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		SiteID:     rec.SiteID,
		StreamName: rec.StreamName,
		Features:   rec.Features,
		Decision:   rec.Decision,
		Reason:     rec.Reason,
		Detections: rec.Detections,
	}
}
