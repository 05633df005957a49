package camera

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/cjeanneret/TurnGo/internal/debug"
)

// Synthetic generates a test pattern at a fixed rate. It stands in for the
// depth sensor on a development rig. The pattern moves with the frame
// sequence so consecutive saved photos differ.
type Synthetic struct {
	width    int
	height   int
	interval time.Duration
}

func NewSynthetic(width, height int, interval time.Duration) *Synthetic {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	if interval <= 0 {
		interval = time.Second / 12
	}
	return &Synthetic{width: width, height: height, interval: interval}
}

func (s *Synthetic) Frames(ctx context.Context) (<-chan Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(chan Frame, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				seq++
				f := Frame{Seq: seq, Image: s.render(seq), At: now}
				select {
				case out <- f:
				default:
					debug.Trace("Synthetic: frame %d dropped, reader busy", seq)
				}
			}
		}
	}()
	return out, nil
}

// render draws a gradient with a vertical bar that sweeps the width once
// every width frames.
func (s *Synthetic) render(seq uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bar := int(seq % uint64(s.width))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / s.width),
				G: uint8(y * 255 / s.height),
				B: uint8(seq),
				A: 0xff,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
