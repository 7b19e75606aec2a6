// Package store is the supplemental, additive persisted build history
// described in SPEC_FULL.md §C, grounded on the teacher's internal/db
// thin-SQL-wrapper pattern over mattn/go-sqlite3. It never participates
// in the in-memory Registry's authority over artifact identity (spec.md
// §3). The "build" command appends a record per finished build; no CLI
// command reads the history back.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS builds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	image TEXT NOT NULL,
	version TEXT NOT NULL,
	outcome TEXT NOT NULL,
	artifact_ids TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_builds_image ON builds(image);
`)
	return err
}

// Record is one completed Build Future's terminal state.
type Record struct {
	Image       string
	Version     string
	Outcome     string // "success", "failure", "canceled"
	ArtifactIDs []string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Insert appends r to the build history. The history is append-only: it
// never updates or deletes a prior build's record.
func (s *Store) Insert(r Record) error {
	_, err := s.db.Exec(
		`INSERT INTO builds (image, version, outcome, artifact_ids, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Image, r.Version, r.Outcome, strings.Join(r.ArtifactIDs, ","), r.Error,
		r.StartedAt, r.FinishedAt)
	return err
}

// ForImage returns every recorded build of image, most recent first.
func (s *Store) ForImage(image string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT image, version, outcome, artifact_ids, error, started_at, finished_at
		 FROM builds WHERE image = ? ORDER BY finished_at DESC`, image)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var artifactIDs string
		if err := rows.Scan(&r.Image, &r.Version, &r.Outcome, &artifactIDs, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if artifactIDs != "" {
			r.ArtifactIDs = strings.Split(artifactIDs, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns up to limit build records across all images, most
// recent first.
func (s *Store) Latest(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT image, version, outcome, artifact_ids, error, started_at, finished_at
		 FROM builds ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var artifactIDs string
		if err := rows.Scan(&r.Image, &r.Version, &r.Outcome, &artifactIDs, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if artifactIDs != "" {
			r.ArtifactIDs = strings.Split(artifactIDs, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r Record) String() string {
	return fmt.Sprintf("%s:%s %s", r.Image, r.Version, r.Outcome)
}
