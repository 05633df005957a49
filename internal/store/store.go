// Package store keeps a sqlite log of capture sessions and of every photo
// the rig tried to save, so gaps left by failed saves can be found later.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/logic/capture"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoSession is returned when no session matches a lookup.
var ErrNoSession = errors.New("session not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas and serialises writers.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	debug.Verbose("Capture log opened at %s", path)
	return s, nil
}

// SessionRecord is a stored session.
type SessionRecord struct {
	ID            uuid.UUID
	PhotosPerRow  int
	StepsPerPhoto int
	Row           int
	Direction     string
	Active        bool
	Folder        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Capture is one save attempt.
type Capture struct {
	ID           int64
	SessionID    uuid.UUID
	Row          int
	Index        int
	Command      int8
	Confirmation int8
	Result       string
	Path         string
	Error        string
	CapturedAt   time.Time
}

// RecordSession inserts s or updates the stored copy.
func (s *Store) RecordSession(sess turntable.Session, folder string) error {
	query := `
		INSERT INTO sessions (session_id, photos_per_row, steps_per_photo, row_number, direction, active, folder)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			photos_per_row  = excluded.photos_per_row,
			steps_per_photo = excluded.steps_per_photo,
			row_number      = excluded.row_number,
			direction       = excluded.direction,
			active          = excluded.active,
			folder          = excluded.folder,
			updated_at      = CURRENT_TIMESTAMP
	`
	_, err := s.Exec(query, sess.ID.String(), sess.PhotosPerRow, sess.StepsPerPhoto, sess.RowNumber,
		sess.Direction.String(), sess.Active, folder)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", sess.ID, err)
	}
	return nil
}

// RecordCapture stores an outcome that reached the save step. Other
// outcomes are ignored and reported as not recorded.
func (s *Store) RecordCapture(o capture.Outcome) (bool, error) {
	if o.Result != capture.Saved && o.Result != capture.PersistenceFailed {
		return false, nil
	}
	var errText string
	if o.Err != nil {
		errText = o.Err.Error()
	}
	query := `
		INSERT INTO captures (session_id, row_number, step_index, command, confirmation, result, path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.Exec(query, o.Session.ID.String(), o.Row, o.Index, o.Command, int8(o.Confirmation),
		o.Result.String(), o.Path, errText)
	if err != nil {
		return false, fmt.Errorf("failed to record capture row=%d index=%d: %w", o.Row, o.Index, err)
	}
	return true, nil
}

// SessionChanged records the session. It lets a Store observe a rig.
func (s *Store) SessionChanged(sess turntable.Session, folder string) {
	if err := s.RecordSession(sess, folder); err != nil {
		debug.Error(err)
	}
}

// FrameCaptured records the outcome. It lets a Store observe a rig.
func (s *Store) FrameCaptured(o capture.Outcome) {
	if _, err := s.RecordCapture(o); err != nil {
		debug.Error(err)
	}
}

// Session returns the stored session id.
func (s *Store) Session(id uuid.UUID) (SessionRecord, error) {
	row := s.QueryRow(sessionSelect+` WHERE session_id = ?`, id.String())
	return scanSession(row)
}

// LatestSession returns the most recently updated session that has at least
// one capture.
func (s *Store) LatestSession() (SessionRecord, error) {
	row := s.QueryRow(sessionSelect + `
		WHERE session_id IN (SELECT session_id FROM captures)
		ORDER BY updated_at DESC, rowid DESC
		LIMIT 1`)
	return scanSession(row)
}

const sessionSelect = `
	SELECT session_id, photos_per_row, steps_per_photo, row_number, direction, active, folder, created_at, updated_at
	FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var (
		rec SessionRecord
		id  string
	)
	err := row.Scan(&id, &rec.PhotosPerRow, &rec.StepsPerPhoto, &rec.Row, &rec.Direction, &rec.Active,
		&rec.Folder, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNoSession
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to scan session: %w", err)
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("bad session id %q: %w", id, err)
	}
	return rec, nil
}

// ListCaptures returns the captures of a session in the order they happened.
func (s *Store) ListCaptures(sessionID uuid.UUID) ([]Capture, error) {
	rows, err := s.Query(`
		SELECT capture_id, session_id, row_number, step_index, command, confirmation, result, path, error, captured_at
		FROM captures
		WHERE session_id = ?
		ORDER BY capture_id`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var (
			c  Capture
			id string
		)
		if err := rows.Scan(&c.ID, &id, &c.Row, &c.Index, &c.Command, &c.Confirmation, &c.Result,
			&c.Path, &c.Error, &c.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		if c.SessionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Gaps returns, in ascending order, the indices of row in [0, photosPerRow)
// that have no successful save in the session.
func (s *Store) Gaps(sessionID uuid.UUID, row, photosPerRow int) ([]int, error) {
	if !turntable.ValidPhotosPerRow(photosPerRow) {
		return nil, fmt.Errorf("%w, got %d", turntable.ErrInvalidPhotosPerRow, photosPerRow)
	}
	rows, err := s.Query(`
		SELECT DISTINCT step_index FROM captures
		WHERE session_id = ? AND row_number = ? AND result = ?`,
		sessionID.String(), row, capture.Saved.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query saved indices: %w", err)
	}
	defer rows.Close()

	saved := make([]bool, photosPerRow)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		if idx >= 0 && idx < photosPerRow {
			saved[idx] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	gaps := []int{}
	for idx, ok := range saved {
		if !ok {
			gaps = append(gaps, idx)
		}
	}
	return gaps, nil
}
