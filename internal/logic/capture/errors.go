package capture

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/TurnGo/internal/hw/motor"
)

var (
	// ErrConfiguration marks a cycle requested with an unusable session,
	// e.g. armed without a direction. The session is left unchanged.
	ErrConfiguration = errors.New("capture configuration error")
	// ErrTransmission marks a step the controller did not confirm.
	ErrTransmission = errors.New("step not confirmed")
	// ErrPersistence marks a confirmed step whose photo could not be saved.
	ErrPersistence = errors.New("photo not saved")
)

// TransmissionError reports a failed exchange with the motor controller.
type TransmissionError struct {
	Command      int8
	Confirmation motor.Confirmation
	Err          error // nil when the controller answered with a non-step value
}

func (e *TransmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step command %+d: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("step command %+d: controller answered %d", e.Command, e.Confirmation)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

func (e *TransmissionError) Is(target error) bool { return target == ErrTransmission }

// PersistenceError reports a photo that could not be written. The step it
// belongs to has already been counted, leaving a gap in the row.
type PersistenceError struct {
	Path  string
	Row   int
	Index int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %s (row %d, index %d): %v", e.Path, e.Row, e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
