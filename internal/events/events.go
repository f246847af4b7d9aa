// Package events persists detection and actuation history to SQLite and
// exposes the admin surface for inspecting and backing it up.
package events

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/fenceline/catsentry/internal/geometry"
	"github.com/fenceline/catsentry/internal/security"
)

// timeFormat is the wall-clock form stored in the timestamp columns. It
// matches SQLite's CURRENT_TIMESTAMP output so hand-written rows and rows
// written by this package sort and group together.
const timeFormat = "2006-01-02 15:04:05"

type DB struct {
	*sql.DB

	path string
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS detection_events (
			id                TEXT PRIMARY KEY,
			class_name        TEXT NOT NULL,
			confidence        DOUBLE NOT NULL,
			center_x          BIGINT NOT NULL,
			center_y          BIGINT NOT NULL,
			box_x1            BIGINT NOT NULL,
			box_y1            BIGINT NOT NULL,
			box_x2            BIGINT NOT NULL,
			box_y2            BIGINT NOT NULL,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS trigger_events (
			id                TEXT PRIMARY KEY,
			detections        BIGINT NOT NULL DEFAULT 0,
			success           INTEGER NOT NULL,
			error             TEXT NOT NULL DEFAULT '',
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_detection_events_timestamp ON detection_events (timestamp);
		CREATE INDEX IF NOT EXISTS idx_trigger_events_timestamp ON trigger_events (timestamp);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the filesystem location of the database file.
func (db *DB) Path() string {
	return db.path
}

// DetectionEvent is one sighting that passed the region filter.
type DetectionEvent struct {
	ID         string    `json:"id"`
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	CenterX    int       `json:"center_x"`
	CenterY    int       `json:"center_y"`
	X1         int       `json:"x1"`
	Y1         int       `json:"y1"`
	X2         int       `json:"x2"`
	Y2         int       `json:"y2"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *DetectionEvent) String() string {
	return fmt.Sprintf(
		"Class: %s, Confidence: %.2f, Center: (%d, %d), Box: (%d, %d)-(%d, %d)",
		e.ClassName,
		e.Confidence,
		e.CenterX,
		e.CenterY,
		e.X1,
		e.Y1,
		e.X2,
		e.Y2,
	)
}

// RecordDetection stores one region-filtered sighting. The pipeline writes
// one row per rising edge rather than one per frame, so sustained presence
// does not flood the table.
func (db *DB) RecordDetection(className string, confidence float64, x1, y1, x2, y2 int) error {
	center := geometry.Center(x1, y1, x2, y2)

	_, err := db.Exec(
		`INSERT INTO detection_events (
			id, class_name, confidence, center_x, center_y,
			box_x1, box_y1, box_x2, box_y2, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), className, confidence, center.X, center.Y,
		x1, y1, x2, y2, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return err
	}
	return nil
}

// RecentDetections returns up to limit detection events, newest first.
// A non-positive limit selects a default of 50.
func (db *DB) RecentDetections(limit int) ([]DetectionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`SELECT id, class_name, confidence, center_x, center_y,
			box_x1, box_y1, box_x2, box_y2, timestamp
		FROM detection_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DetectionEvent
	for rows.Next() {
		var e DetectionEvent
		var ts string
		if err := rows.Scan(
			&e.ID, &e.ClassName, &e.Confidence, &e.CenterX, &e.CenterY,
			&e.X1, &e.Y1, &e.X2, &e.Y2, &ts,
		); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("failed to parse detection timestamp: %v", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TriggerEvent is one actuation attempt, successful or not.
type TriggerEvent struct {
	ID         string    `json:"id"`
	Detections int       `json:"detections"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *TriggerEvent) String() string {
	if e.Success {
		return fmt.Sprintf("Trigger at %s (%d detections): ok", e.Timestamp.Format(timeFormat), e.Detections)
	}
	return fmt.Sprintf("Trigger at %s (%d detections): %s", e.Timestamp.Format(timeFormat), e.Detections, e.Error)
}

// RecordTrigger stores one actuation attempt along with how many filtered
// detections were present. errMsg is empty for a successful pulse.
func (db *DB) RecordTrigger(detections int, success bool, errMsg string) error {
	successInt := 0
	if success {
		successInt = 1
	}

	_, err := db.Exec(
		`INSERT INTO trigger_events (id, detections, success, error, timestamp) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), detections, successInt, errMsg, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return err
	}
	return nil
}

// RecentTriggers returns up to limit actuation attempts, newest first.
// A non-positive limit selects a default of 50.
func (db *DB) RecentTriggers(limit int) ([]TriggerEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`SELECT id, detections, success, error, timestamp
		FROM trigger_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []TriggerEvent
	for rows.Next() {
		var e TriggerEvent
		var successInt int
		var ts string
		if err := rows.Scan(&e.ID, &e.Detections, &successInt, &e.Error, &ts); err != nil {
			return nil, err
		}
		e.Success = successInt != 0
		if e.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("failed to parse trigger timestamp: %v", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HourlyCount is per-hour event volume.
type HourlyCount struct {
	Hour       time.Time `json:"hour"`
	Detections int       `json:"detections"`
	Triggers   int       `json:"triggers"`
}

// HourlyActivity buckets detection and trigger events by clock hour, oldest
// bucket first. Events before since are excluded; hours with no events of
// either kind produce no bucket.
func (db *DB) HourlyActivity(since time.Time) ([]HourlyCount, error) {
	sinceArg := since.UTC().Format(timeFormat)
	counts := make(map[string]*HourlyCount)

	detRows, err := db.Query(`SELECT strftime('%Y-%m-%d %H:00:00', timestamp) AS hour, COUNT(*)
		FROM detection_events WHERE timestamp >= ? GROUP BY hour`, sinceArg)
	if err != nil {
		return nil, err
	}
	defer detRows.Close()

	for detRows.Next() {
		var hour string
		var n int
		if err := detRows.Scan(&hour, &n); err != nil {
			return nil, err
		}
		bucketFor(counts, hour).Detections = n
	}
	if err := detRows.Err(); err != nil {
		return nil, err
	}

	trigRows, err := db.Query(`SELECT strftime('%Y-%m-%d %H:00:00', timestamp) AS hour, COUNT(*)
		FROM trigger_events WHERE timestamp >= ? GROUP BY hour`, sinceArg)
	if err != nil {
		return nil, err
	}
	defer trigRows.Close()

	for trigRows.Next() {
		var hour string
		var n int
		if err := trigRows.Scan(&hour, &n); err != nil {
			return nil, err
		}
		bucketFor(counts, hour).Triggers = n
	}
	if err := trigRows.Err(); err != nil {
		return nil, err
	}

	hours := make([]string, 0, len(counts))
	for hour := range counts {
		hours = append(hours, hour)
	}
	sort.Strings(hours)

	buckets := make([]HourlyCount, 0, len(hours))
	for _, hour := range hours {
		b := counts[hour]
		if b.Hour, err = time.Parse(timeFormat, hour); err != nil {
			return nil, fmt.Errorf("failed to parse activity hour: %v", err)
		}
		buckets = append(buckets, *b)
	}
	return buckets, nil
}

func bucketFor(counts map[string]*HourlyCount, hour string) *HourlyCount {
	if c, ok := counts[hour]; ok {
		return c
	}
	c := &HourlyCount{}
	counts[hour] = c
	return c
}

// Backup writes a consistent copy of the database to path, which must live
// inside the working directory or the system temp dir.
func (db *DB) Backup(path string) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to create backup: %v", err)
	}
	return nil
}

// AttachAdminRoutes mounts the tailSQL inspector and the backup download
// handler under /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Event DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if dest := r.URL.Query().Get("path"); dest != "" {
			backupPath = dest
		}
		// The scratch copy may only land inside the working directory or
		// the system temp dir; it is removed once the download completes.
		if err := security.ValidateExportPath(backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusBadRequest)
			return
		}

		if err := db.Backup(backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
