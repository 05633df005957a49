// Package capture ties one camera frame to one motor step: it sends the step,
// waits for the controller's confirmation and saves the frame under the index
// the confirmed step produced.
package capture

import (
	"context"
	"fmt"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
)

// Saver writes the current frame as <folder>/frame<row>_<index>.jpg and
// returns the path it wrote or attempted.
type Saver interface {
	SaveCurrentFrame(row, index int) (string, error)
}

// Result classifies what a frame did.
type Result int

const (
	Idle                Result = iota // session not armed, nothing sent
	Saved                             // step confirmed, photo written
	ConfigurationFailed               // nothing sent, session unchanged
	TransmissionFailed                // step not confirmed, session unchanged
	PersistenceFailed                 // step confirmed and counted, photo missing
)

func (r Result) String() string {
	switch r {
	case Idle:
		return "idle"
	case Saved:
		return "saved"
	case ConfigurationFailed:
		return "configuration_error"
	case TransmissionFailed:
		return "transmission_error"
	case PersistenceFailed:
		return "persistence_error"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Outcome describes one call to OnFrameReady.
type Outcome struct {
	Result       Result
	Session      turntable.Session // state after the frame
	Command      int8
	Confirmation motor.Confirmation
	Row          int
	Index        int
	Path         string
	RowComplete  bool
	Err          error
}

// Trigger runs the step-then-save cycle for each frame.
type Trigger struct {
	link  motor.Link
	saver Saver
}

func NewTrigger(link motor.Link, saver Saver) *Trigger {
	return &Trigger{
		link:  link,
		saver: saver,
	}
}

// OnFrameReady runs one cycle for s and returns the next session.
//
// An inactive session is a no-op. Otherwise one step command is sent and
// OnFrameReady blocks until the link answers. Only a +1 or -1 confirmation
// advances the session, and the photo is saved after the index is updated.
// A failed save does not undo the step.
func (t *Trigger) OnFrameReady(ctx context.Context, s turntable.Session) (turntable.Session, Outcome) {
	out := Outcome{Result: Idle, Session: s, Row: s.RowNumber, Index: s.CurrentStepIndex}
	if !s.Active {
		return s, out
	}

	cmd, err := s.Command()
	if err != nil {
		out.Result = ConfigurationFailed
		out.Err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		debug.Error(out.Err)
		return s, out
	}
	out.Command = cmd

	conf, err := t.link.SendStep(ctx, cmd)
	out.Confirmation = conf
	if err != nil || !conf.Valid() {
		out.Result = TransmissionFailed
		out.Err = &TransmissionError{Command: cmd, Confirmation: conf, Err: err}
		debug.Warn("%v", out.Err)
		return s, out
	}
	debug.Command(cmd, int8(conf))

	next, idx, done, err := turntable.Advance(s, conf)
	if err != nil {
		// Advance only rejects what Valid already filtered; keep the
		// session as it was if that ever changes.
		out.Result = TransmissionFailed
		out.Err = &TransmissionError{Command: cmd, Confirmation: conf, Err: err}
		debug.Warn("%v", out.Err)
		return s, out
	}
	out.Session = next
	out.Index = idx
	out.RowComplete = done

	path, err := t.saver.SaveCurrentFrame(s.RowNumber, idx)
	out.Path = path
	if err != nil {
		out.Result = PersistenceFailed
		out.Err = &PersistenceError{Path: path, Row: s.RowNumber, Index: idx, Err: err}
		debug.Warn("%v", out.Err)
	} else {
		out.Result = Saved
		debug.Photo(s.RowNumber, idx, path)
	}

	if done {
		debug.RowComplete(s.RowNumber, s.PhotosPerRow)
	}
	return next, out
}
