package turntable

import (
	"fmt"

	"github.com/cjeanneret/TurnGo/internal/hw/motor"
)

// Advance applies one confirmed step to s.
//
// It returns the updated session, the index of the photo the step produced
// and whether that photo completed the row. The index wraps: 0 stepping back
// lands on PhotosPerRow-1 and PhotosPerRow-1 stepping forward lands on 0.
//
// When the row completes the returned session is already inactive with its
// counters at zero; the returned index still names the last photo.
// A confirmation other than +1 or -1 is rejected and s is returned as is.
func Advance(s Session, c motor.Confirmation) (Session, int, bool, error) {
	if !c.Valid() {
		return s, s.CurrentStepIndex, false, fmt.Errorf("%w, got %d", ErrInvalidConfirmation, c)
	}
	if !ValidPhotosPerRow(s.PhotosPerRow) {
		return s, s.CurrentStepIndex, false, fmt.Errorf("%w, got %d", ErrInvalidPhotosPerRow, s.PhotosPerRow)
	}

	last := s.PhotosPerRow - 1
	idx := s.CurrentStepIndex
	switch {
	case idx <= 0 && c == motor.Backward:
		idx = last
	case idx >= last && c == motor.Forward:
		idx = 0
	default:
		idx += int(c)
	}

	s.CurrentStepIndex = idx
	s.PhotosTakenInRow++
	if s.PhotosTakenInRow < s.PhotosPerRow {
		return s, idx, false, nil
	}
	return s.Disarm(), idx, true, nil
}
