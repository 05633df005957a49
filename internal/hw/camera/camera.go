package camera

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/cjeanneret/TurnGo/internal/config"
)

// ErrNoDevice is returned when no sensor is attached.
var ErrNoDevice = errors.New("no camera device available")

// Frame is one color image delivered by a Source.
type Frame struct {
	Seq   uint64
	Image image.Image
	At    time.Time
}

// Source is the high-level interface used by the rest of the application.
// It represents an abstract color stream, regardless of where the frames
// come from (depth sensor, USB webcam, generated pattern, etc.).
//
// Frames starts the stream. The channel is closed when ctx is done. A slow
// reader misses frames rather than queueing them.
type Source interface {
	Frames(ctx context.Context) (<-chan Frame, error)
}

// New returns the Source selected by cfg.Camera.Type.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Camera.Type {
	case config.CameraSynthetic:
		return NewSynthetic(cfg.Camera.Width, cfg.Camera.Height, cfg.FrameInterval()), nil
	case config.CameraNone:
		return nil, ErrNoDevice
	}
	return nil, errors.Join(ErrNoDevice, errors.New("unknown camera type "+cfg.Camera.Type))
}

// Unavailable is a Source with no sensor behind it. A rig built on it never
// runs, which leaves the web viewer usable without a camera.
type Unavailable struct{}

func (Unavailable) Frames(context.Context) (<-chan Frame, error) {
	return nil, ErrNoDevice
}
