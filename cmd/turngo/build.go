package main

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/TurnGo/internal/config"
	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/hw/gpio"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/hw/stepper"
	"github.com/cjeanneret/TurnGo/internal/logic/geometry"
	"github.com/cjeanneret/TurnGo/internal/logic/motion"
	"github.com/cjeanneret/TurnGo/internal/logic/rig"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"github.com/cjeanneret/TurnGo/internal/store"
)

// rigParts is a rig with everything it was built from.
type rigParts struct {
	rig     *rig.Rig
	frames  *camera.FrameStore
	steps   *geometry.StepsCalculator
	store   *store.Store // nil without output.database
	closers []func() error
}

// Close releases hardware and the capture log in reverse order.
func (p *rigParts) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			debug.Error(err)
		}
	}
	p.closers = nil
}

// newLink returns the motor link selected by cfg.Motor.Type and a function
// releasing it.
func newLink(cfg *config.Config) (motor.Link, func() error, error) {
	switch cfg.Motor.Type {
	case config.MotorSerial:
		link, err := motor.NewSerialLink(cfg.Serial.Port, cfg.Serial.PortOptions, cfg.ReadTimeout())
		if err != nil {
			return nil, nil, fmt.Errorf("serial motor link: %w", err)
		}
		return link, func() error { return nil }, nil

	case config.MotorGPIO:
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		drv, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return nil, nil, fmt.Errorf("init GPIO: %w", err)
		}
		st := stepper.NewStepper(drv, stepper.Config{
			StepPin:       cfg.Motor.StepPin,
			DirPin:        cfg.Motor.DirPin,
			EnablePin:     cfg.Motor.EnablePin,
			StepsPerRev:   cfg.Motor.StepsPerRev,
			Microstepping: cfg.Motor.Microstepping,
			StepDelay:     cfg.MoveSpeed() / 2,
			InvertDir:     cfg.Motor.InvertDir,
		})
		debug.PrintStruct("Stepper config", cfg.Motor)
		link := motion.NewDirectLink(st, geometry.NewStepsCalculator(cfg))
		closeAll := func() error {
			return errors.Join(link.Close(), drv.Close())
		}
		return link, closeAll, nil
	}
	return nil, nil, fmt.Errorf("unsupported motor type %q", cfg.Motor.Type)
}

// buildRig assembles source, frame store, motor link and capture log into a
// rig. With allowNoCamera a missing sensor yields a rig that never runs
// instead of an error.
func buildRig(cfg *config.Config, allowNoCamera bool, observers ...rig.Observer) (*rigParts, error) {
	p := &rigParts{steps: geometry.NewStepsCalculator(cfg)}

	debug.Step(1, "Opening frame source")
	src, err := camera.New(cfg)
	if err != nil {
		if !allowNoCamera || !errors.Is(err, camera.ErrNoDevice) {
			return nil, fmt.Errorf("init camera: %w", err)
		}
		debug.Warn("No camera: %v", err)
		src = camera.Unavailable{}
	}
	debug.Value("Camera type", cfg.Camera.Type)

	debug.Step(2, "Connecting motor link")
	link, closeLink, err := newLink(cfg)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeLink)

	if cfg.Output.Database != "" {
		debug.Step(3, "Opening capture log")
		st, err := store.Open(cfg.Output.Database)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open capture log: %w", err)
		}
		p.store = st
		p.closers = append(p.closers, st.Close)
		observers = append(observers, st)
	}

	session, err := turntable.NewSession(cfg.Capture.PhotosPerRow, cfg.Capture.Row)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.frames = camera.NewFrameStore(cfg.Output.Folder, cfg.Output.JPEGQuality)
	debug.Value("Output folder", p.frames.Dir())
	debug.Value("Photos per row", session.PhotosPerRow)
	debug.Value("Steps per photo", session.StepsPerPhoto)

	p.rig = rig.New(src, p.frames, link, session, observers...)
	return p, nil
}
