// Package turntable holds the capture session of the rig and the step
// arithmetic that turns confirmed motor steps into photo indices.
//
// A Session is a plain value. Every operation takes one and returns the
// next one; nothing here keeps state of its own.
package turntable

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// StepsPerRevolution is the number of quarter steps in one turn of the plate.
const StepsPerRevolution = 800

// PhotosPerRowChoices are the ways a revolution can be split. Each one
// divides StepsPerRevolution exactly.
var PhotosPerRowChoices = []int{80, 100, 160, 200, 400, 800}

var (
	ErrInvalidDirection    = errors.New("rotation direction must be positive or negative")
	ErrInvalidPhotosPerRow = fmt.Errorf("photos per row must be one of %v", PhotosPerRowChoices)
	ErrInvalidConfirmation = errors.New("step confirmation must be +1 or -1")
	ErrInvalidRow          = errors.New("row number must be >= 0")
)

// Direction is the way the plate turns.
type Direction int

const (
	None     Direction = iota
	Positive           // counter-clockwise
	Negative           // clockwise
)

func (d Direction) String() string {
	switch d {
	case None:
		return "none"
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Sign returns +1 for Positive, -1 for Negative and 0 otherwise.
func (d Direction) Sign() int {
	switch d {
	case Positive:
		return 1
	case Negative:
		return -1
	}
	return 0
}

// ParseDirection accepts "positive"/"ccw"/"+" and "negative"/"cw"/"-".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "ccw", "+":
		return Positive, nil
	case "negative", "cw", "-":
		return Negative, nil
	case "none", "":
		return None, nil
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// ValidPhotosPerRow reports whether n is one of PhotosPerRowChoices.
func ValidPhotosPerRow(n int) bool {
	return slices.Contains(PhotosPerRowChoices, n)
}

// StepsPerPhoto returns the quarter steps between two photos of a row.
func StepsPerPhoto(photosPerRow int) (int, error) {
	if !ValidPhotosPerRow(photosPerRow) {
		return 0, fmt.Errorf("%w, got %d", ErrInvalidPhotosPerRow, photosPerRow)
	}
	return StepsPerRevolution / photosPerRow, nil
}

// Session is the state of one capture run over an object.
type Session struct {
	ID               uuid.UUID
	Active           bool
	Direction        Direction
	PhotosPerRow     int
	StepsPerPhoto    int
	CurrentStepIndex int // in [0, PhotosPerRow)
	PhotosTakenInRow int // in [0, PhotosPerRow]
	RowNumber        int
}

// NewSession returns an inactive session with zeroed counters.
func NewSession(photosPerRow, row int) (Session, error) {
	steps, err := StepsPerPhoto(photosPerRow)
	if err != nil {
		return Session{}, err
	}
	if row < 0 {
		return Session{}, fmt.Errorf("%w, got %d", ErrInvalidRow, row)
	}
	return Session{
		ID:            uuid.New(),
		PhotosPerRow:  photosPerRow,
		StepsPerPhoto: steps,
		RowNumber:     row,
	}, nil
}

// Arm activates the session in direction d. Selecting a direction replaces
// the other one; counters are left alone.
func (s Session) Arm(d Direction) (Session, error) {
	if d != Positive && d != Negative {
		return s, fmt.Errorf("%w, got %s", ErrInvalidDirection, d)
	}
	s.Active = true
	s.Direction = d
	return s, nil
}

// Disarm deactivates the session and clears the direction. Counters are reset
// so the next Arm starts a fresh row.
func (s Session) Disarm() Session {
	s.Active = false
	s.Direction = None
	s.CurrentStepIndex = 0
	s.PhotosTakenInRow = 0
	return s
}

// Reset starts a new session with the same settings: new ID, inactive,
// counters at zero.
func (s Session) Reset() Session {
	s = s.Disarm()
	s.ID = uuid.New()
	return s
}

// WithPhotosPerRow changes the split of a revolution and resets the session.
func (s Session) WithPhotosPerRow(n int) (Session, error) {
	steps, err := StepsPerPhoto(n)
	if err != nil {
		return s, err
	}
	s = s.Reset()
	s.PhotosPerRow = n
	s.StepsPerPhoto = steps
	return s, nil
}

// WithRow sets the row used in file names. Rows only change this way.
func (s Session) WithRow(row int) (Session, error) {
	if row < 0 {
		return s, fmt.Errorf("%w, got %d", ErrInvalidRow, row)
	}
	s.RowNumber = row
	return s, nil
}

// Command returns the signed quarter-step count to send for the next photo.
func (s Session) Command() (int8, error) {
	sign := s.Direction.Sign()
	if sign == 0 {
		return 0, fmt.Errorf("%w, got %s", ErrInvalidDirection, s.Direction)
	}
	if s.StepsPerPhoto <= 0 || s.StepsPerPhoto > 127 {
		return 0, fmt.Errorf("steps per photo %d does not fit a step command", s.StepsPerPhoto)
	}
	return int8(sign * s.StepsPerPhoto), nil
}

// Remaining is the number of photos left before the row completes.
func (s Session) Remaining() int {
	return s.PhotosPerRow - s.PhotosTakenInRow
}
