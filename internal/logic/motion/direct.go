// Package motion drives the turntable motor straight from the Pi's GPIO
// header, answering step commands the way the serial controller does.
package motion

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/hw/stepper"
	"github.com/cjeanneret/TurnGo/internal/logic/geometry"
)

// DirectLink is a motor.Link backed by a local stepper. It is the
// intermediate layer between the capture logic and the GPIO pins when no
// controller board sits in between.
type DirectLink struct {
	mu      sync.Mutex
	stepper *stepper.Stepper
	calc    *geometry.StepsCalculator
}

var _ motor.Link = (*DirectLink)(nil)

func NewDirectLink(s *stepper.Stepper, calc *geometry.StepsCalculator) *DirectLink {
	return &DirectLink{
		stepper: s,
		calc:    calc,
	}
}

// SendStep moves the plate by command quarter steps and confirms the
// direction it moved. A failed move confirms nothing.
func (l *DirectLink) SendStep(ctx context.Context, command int8) (motor.Confirmation, error) {
	if command == 0 {
		return motor.Failed, motor.ErrZeroCommand
	}
	if err := ctx.Err(); err != nil {
		return motor.Failed, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	micro := l.calc.MicrostepsForCommand(command)
	if err := l.stepper.MoveSteps(micro); err != nil {
		return motor.Failed, fmt.Errorf("move %d microsteps: %w", micro, err)
	}

	confirmation := motor.Forward
	if command < 0 {
		confirmation = motor.Backward
	}
	debug.Trace("DirectLink: command %+d -> %d microsteps, position %d", command, micro, l.stepper.Position())
	return confirmation, nil
}

// Position returns the microsteps moved since start.
func (l *DirectLink) Position() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stepper.Position()
}

// Close releases the motor coils.
func (l *DirectLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stepper.Disable()
}
