package winlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"birdgate/internal/classifier"
	"birdgate/internal/features"
	"birdgate/internal/gate"
)

// migrations holds the ordered list of DDL statements that bring the
// schema up to date. Index i corresponds to version i+1. To add a
// migration, append a new string — never edit or reorder existing
// entries.
var migrations = []string{
	// v1 — windows and their detections
	`CREATE TABLE IF NOT EXISTS windows (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp        DATETIME NOT NULL,
		site_id          TEXT NOT NULL,
		stream_name      TEXT NOT NULL,
		rms_total_db     REAL NOT NULL,
		rms_bird_band_db REAL NOT NULL,
		rms_low_band_db  REAL NOT NULL,
		snr_bird_db      REAL NOT NULL,
		decision         TEXT NOT NULL,
		reason           TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS detections (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		window_id   INTEGER NOT NULL REFERENCES windows(id),
		species     TEXT NOT NULL,
		confidence  REAL NOT NULL,
		start_time  REAL NOT NULL,
		end_time    REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_windows_timestamp ON windows(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_windows_stream_name ON windows(stream_name)`,
	`CREATE INDEX IF NOT EXISTS idx_windows_decision ON windows(decision)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_species ON detections(species)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_window_id ON detections(window_id)`,
	`PRAGMA journal_mode=WAL`,
}

// sqliteStore persists windows and detections in an embedded SQLite
// database, grounded directly on the migration-runner and connection
// pragma idioms used by this codebase's earlier SQLite-backed store.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("winlog: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		slog.Default().Warn("winlog: WAL mode failed, continuing", "error", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		slog.Default().Warn("winlog: busy_timeout failed, continuing", "error", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("winlog: migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		slog.Default().Debug("winlog: applied migration", "version", v)
	}
	return nil
}

func (s *sqliteStore) LogWindow(siteID, streamName string, timestamp time.Time, f features.AudioFeatures, decision gate.Decision, reason string, dets []classifier.Detection) (int64, error) {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO windows(timestamp, site_id, stream_name, rms_total_db, rms_bird_band_db, rms_low_band_db, snr_bird_db, decision, reason)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		timestamp.UTC(), siteID, streamName, f.RMSTotalDB, f.RMSBirdBandDB, f.RMSLowBandDB, f.SNRBirdDB, decision.String(), reason,
	)
	if err != nil {
		return 0, fmt.Errorf("insert window: %w", err)
	}
	windowID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, d := range dets {
		if _, err := tx.Exec(
			`INSERT INTO detections(window_id, species, confidence, start_time, end_time) VALUES(?,?,?,?,?)`,
			windowID, d.Species, d.Confidence, d.StartTime, d.EndTime,
		); err != nil {
			return 0, fmt.Errorf("insert detection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return windowID, nil
}

func (s *sqliteStore) GetRecentWindows(streamName, decision string, limit int) ([]WindowRecord, error) {
	var conds []string
	var args []any
	if streamName != "" {
		conds = append(conds, "stream_name = ?")
		args = append(args, streamName)
	}
	if decision != "" {
		conds = append(conds, "decision = ?")
		args = append(args, decision)
	}
	query := `SELECT id, timestamp, site_id, stream_name, rms_total_db, rms_bird_band_db, rms_low_band_db, snr_bird_db, decision, reason FROM windows`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []WindowRecord
	for rows.Next() {
		var r WindowRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.SiteID, &r.StreamName,
			&r.Features.RMSTotalDB, &r.Features.RMSBirdBandDB, &r.Features.RMSLowBandDB, &r.Features.SNRBirdDB,
			&r.Decision, &r.Reason); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		dets, err := s.GetDetectionsForWindow(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Detections = dets
	}
	return records, nil
}

func (s *sqliteStore) GetDetectionsForWindow(windowID int64) ([]classifier.Detection, error) {
	rows, err := s.db.Query(
		`SELECT species, confidence, start_time, end_time FROM detections WHERE window_id = ? ORDER BY confidence DESC, id ASC`,
		windowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dets []classifier.Detection
	for rows.Next() {
		var d classifier.Detection
		if err := rows.Scan(&d.Species, &d.Confidence, &d.StartTime, &d.EndTime); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, rows.Err()
}

func (s *sqliteStore) GetSpeciesSummary(streamName string, since time.Time) ([]SpeciesSummary, error) {
	query := `SELECT d.species, COUNT(*), MAX(d.confidence), AVG(d.confidence)
	          FROM detections d JOIN windows w ON w.id = d.window_id`
	var conds []string
	var args []any
	if streamName != "" {
		conds = append(conds, "w.stream_name = ?")
		args = append(args, streamName)
	}
	if !since.IsZero() {
		conds = append(conds, "w.timestamp >= ?")
		args = append(args, since.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " GROUP BY d.species ORDER BY COUNT(*) DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SpeciesSummary
	for rows.Next() {
		var sum SpeciesSummary
		if err := rows.Scan(&sum.Species, &sum.DetectionCount, &sum.MaxConfidence, &sum.AvgConfidence); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *sqliteStore) GetDecisionStats(streamName string, since time.Time) (DecisionStats, error) {
	query := `SELECT decision, COUNT(*) FROM windows`
	var conds []string
	var args []any
	if streamName != "" {
		conds = append(conds, "stream_name = ?")
		args = append(args, streamName)
	}
	if !since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, since.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " GROUP BY decision"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return DecisionStats{}, err
	}
	defer rows.Close()

	var stats DecisionStats
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return DecisionStats{}, err
		}
		switch decision {
		case "SILENCE":
			stats.Silence = count
		case "TRASH":
			stats.Trash = count
		case "SEND_TO_BIRDNET":
			stats.SendToBirdNET = count
		}
	}
	return stats, rows.Err()
}
