package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/TurnGo/internal/config"
	"github.com/cjeanneret/TurnGo/internal/hw/gpio"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/hw/stepper"
	"github.com/cjeanneret/TurnGo/internal/logic/geometry"
)

const (
	stepPin   = 1
	dirPin    = 2
	enablePin = 3
)

func newMockLink(t *testing.T) (*DirectLink, *gpio.MockDriver) {
	t.Helper()
	drv := &gpio.MockDriver{}
	s := stepper.NewStepper(drv, stepper.Config{
		StepPin:       stepPin,
		DirPin:        dirPin,
		EnablePin:     enablePin,
		StepsPerRev:   200,
		Microstepping: 16,
		StepDelay:     1 * time.Microsecond,
	})
	calc := geometry.NewStepsCalculator(&config.Config{
		Motor: config.MotorConfig{StepsPerRev: 200, Microstepping: 16, QuarterStepsPerRev: 800},
	})
	return NewDirectLink(s, calc), drv
}

func TestDirectLink_Confirmations(t *testing.T) {
	cases := []struct {
		command int8
		want    motor.Confirmation
		pulses  int
		dir     gpio.Level
	}{
		{4, motor.Forward, 16, gpio.High},
		{-4, motor.Backward, 16, gpio.Low},
		{10, motor.Forward, 40, gpio.High},
		{-1, motor.Backward, 4, gpio.Low},
	}
	for _, tc := range cases {
		link, drv := newMockLink(t)
		got, err := link.SendStep(context.Background(), tc.command)
		if err != nil {
			t.Fatalf("SendStep(%d): %v", tc.command, err)
		}
		if got != tc.want {
			t.Errorf("SendStep(%d) = %d, want %d", tc.command, got, tc.want)
		}
		if p := drv.Pulses(stepPin); p != tc.pulses {
			t.Errorf("SendStep(%d) pulsed %d times, want %d", tc.command, p, tc.pulses)
		}
		if lvl, _ := drv.ReadPin(dirPin); lvl != tc.dir {
			t.Errorf("SendStep(%d) left DIR at %v, want %v", tc.command, lvl, tc.dir)
		}
	}
}

func TestDirectLink_Position(t *testing.T) {
	link, _ := newMockLink(t)
	ctx := context.Background()
	for _, cmd := range []int8{4, 4, -2} {
		if _, err := link.SendStep(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}
	if got := link.Position(); got != 24 {
		t.Errorf("Position() = %d, want 24", got)
	}
}

func TestDirectLink_ZeroCommand(t *testing.T) {
	link, drv := newMockLink(t)
	got, err := link.SendStep(context.Background(), 0)
	if !errors.Is(err, motor.ErrZeroCommand) || got != motor.Failed {
		t.Errorf("SendStep(0) = %d, %v; want Failed, ErrZeroCommand", got, err)
	}
	if drv.Pulses(stepPin) != 0 {
		t.Error("zero command must not move the motor")
	}
}

func TestDirectLink_CancelledContext(t *testing.T) {
	link, drv := newMockLink(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := link.SendStep(ctx, 4)
	if !errors.Is(err, context.Canceled) || got != motor.Failed {
		t.Errorf("SendStep = %d, %v; want Failed, context.Canceled", got, err)
	}
	if drv.Pulses(stepPin) != 0 {
		t.Error("cancelled command must not move the motor")
	}
}

type failingDriver struct{ gpio.MockDriver }

func (f *failingDriver) WritePin(pin int, level gpio.Level) error {
	if pin == stepPin {
		return errors.New("pin busy")
	}
	return f.MockDriver.WritePin(pin, level)
}

func TestDirectLink_MoveFailure(t *testing.T) {
	drv := &failingDriver{}
	s := stepper.NewStepper(drv, stepper.Config{StepPin: stepPin, DirPin: dirPin, StepsPerRev: 200, Microstepping: 4, StepDelay: time.Microsecond})
	calc := geometry.NewStepsCalculator(&config.Config{
		Motor: config.MotorConfig{StepsPerRev: 200, Microstepping: 4, QuarterStepsPerRev: 800},
	})
	link := NewDirectLink(s, calc)

	got, err := link.SendStep(context.Background(), 4)
	if err == nil || got != motor.Failed {
		t.Errorf("SendStep = %d, %v; want Failed with error", got, err)
	}
}

func TestDirectLink_Close(t *testing.T) {
	link, drv := newMockLink(t)
	if err := link.Close(); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := drv.ReadPin(enablePin); lvl != gpio.High {
		t.Errorf("ENABLE after Close = %v, want High", lvl)
	}
}
