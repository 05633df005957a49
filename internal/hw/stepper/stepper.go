package stepper

import (
	"time"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/gpio"
)

// Config describes the A4988 wiring of the turntable motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // BCM pin, 0 = not wired. Active LOW.
	StepsPerRev   int // full steps per motor revolution
	Microstepping int
	StepDelay     time.Duration // half-cycle of the STEP pulse
	InvertDir     bool          // swap rotation sense when the motor is mounted upside down
}

// Stepper turns the platter. Positive steps rotate counter-clockwise seen
// from above (unless InvertDir is set).
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	delay    time.Duration
	position int // microsteps since construction, signed
}

// NewStepper configures the pins and enables the driver so the platter
// holds its position between photos.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}
	if cfg.Microstepping <= 0 {
		cfg.Microstepping = 1
	}

	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}

	return &Stepper{gpio: g, cfg: cfg, delay: delay}
}

// MicrostepsPerRev is the number of STEP pulses in one full platter turn.
func (s *Stepper) MicrostepsPerRev() int {
	return s.cfg.StepsPerRev * s.cfg.Microstepping
}

// Position returns the signed microstep count moved so far.
func (s *Stepper) Position() int {
	return s.position
}

// MoveSteps moves by a signed number of microsteps and blocks until the
// last pulse is out.
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	forward := steps > 0
	count := steps
	if !forward {
		count = -steps
	}
	dirLevel := gpio.Level(forward != s.cfg.InvertDir)

	debug.Verbose("Stepper: %d microsteps (forward=%v) on pin %d", count, forward, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := s.pulse(); err != nil {
			return err
		}
		if forward {
			s.position++
		} else {
			s.position--
		}
	}
	return nil
}

func (s *Stepper) pulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable energizes the coils (ENABLE=LOW).
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable releases the coils (ENABLE=HIGH); the platter can be turned by hand.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
