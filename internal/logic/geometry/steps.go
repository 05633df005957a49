package geometry

import (
	"github.com/cjeanneret/TurnGo/internal/config"
)

// StepsCalculator converts step commands (quarter steps of the plate) to
// motor microsteps and plate angles.
type StepsCalculator struct {
	microstepsPerRev   int
	quarterStepsPerRev int
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	return &StepsCalculator{
		microstepsPerRev:   cfg.Motor.StepsPerRev * cfg.Motor.Microstepping,
		quarterStepsPerRev: cfg.Motor.QuarterStepsPerRev,
	}
}

// MicrostepsPerCommand is the number of microsteps in one quarter step.
func (s *StepsCalculator) MicrostepsPerCommand() int {
	return s.microstepsPerRev / s.quarterStepsPerRev
}

// MicrostepsForCommand converts a signed step command to motor microsteps.
func (s *StepsCalculator) MicrostepsForCommand(command int8) int {
	return int(command) * s.MicrostepsPerCommand()
}

// DegreesForCommand returns how far the plate turns for a step command.
func (s *StepsCalculator) DegreesForCommand(command int8) float64 {
	return float64(command) * 360.0 / float64(s.quarterStepsPerRev)
}

// AngleForIndex returns the plate angle, in [0, 360), at which photo index
// of a row split into photosPerRow shots was taken.
func (s *StepsCalculator) AngleForIndex(index, photosPerRow int) float64 {
	if photosPerRow <= 0 {
		return 0
	}
	index %= photosPerRow
	if index < 0 {
		index += photosPerRow
	}
	return float64(index) * 360.0 / float64(photosPerRow)
}
