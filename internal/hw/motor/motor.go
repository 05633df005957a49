// Package motor talks to the turntable's motor controller. A controller
// receives one signed byte (quarter steps to turn, sign = direction) and
// answers with one signed byte naming the direction it actually stepped.
package motor

import (
	"context"
	"errors"
)

// Confirmation is the controller's answer to a step command.
type Confirmation int8

const (
	Failed   Confirmation = 0  // no step; transport or protocol failure
	Forward  Confirmation = 1  // stepped counter-clockwise
	Backward Confirmation = -1 // stepped clockwise
)

// Valid reports whether c names an actual step.
func (c Confirmation) Valid() bool {
	return c == Forward || c == Backward
}

var (
	ErrNoPort      = errors.New("no serial port found; is the motor controller plugged in?")
	ErrNoReply     = errors.New("motor controller did not answer")
	ErrZeroCommand = errors.New("step command must not be zero")
)

// Link sends one step command and blocks until the controller confirms it.
// Implementations return Failed together with a non-nil error when no step
// was confirmed.
type Link interface {
	SendStep(ctx context.Context, command int8) (Confirmation, error)
}

// EncodeCommand returns the wire byte for a signed step command.
func EncodeCommand(command int8) byte {
	return byte(command)
}

// DecodeConfirmation reads the first reply byte as a signed value.
func DecodeConfirmation(b byte) Confirmation {
	return Confirmation(int8(b))
}
