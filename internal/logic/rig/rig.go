// Package rig runs the capture loop. One goroutine owns the session: it
// feeds each camera frame to the capture trigger and applies user controls
// between frames, so a step that is in flight always finishes before a
// control takes effect.
package rig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/logic/capture"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"github.com/google/uuid"
)

var (
	ErrNotRunning     = errors.New("rig is not running")
	ErrAlreadyRunning = errors.New("rig is already running")
	ErrInterrupted    = errors.New("row interrupted before completion")
)

// FrameStore keeps the latest frame and saves it on request.
// *camera.FrameStore implements it.
type FrameStore interface {
	capture.Saver
	Put(f camera.Frame)
	Dir() string
	SetDir(dir string)
}

// Observer is told about every session change and every capture attempt.
// Calls come from the rig goroutine while Run is processing frames and must
// not block for long.
type Observer interface {
	SessionChanged(s turntable.Session, folder string)
	FrameCaptured(o capture.Outcome)
}

// StopObserver is an Observer that also wants the last session once Run is
// about to return.
type StopObserver interface {
	Observer
	RigStopped(s turntable.Session, folder string)
}

// RowReport summarises one row run by RunRow.
type RowReport struct {
	SessionID          uuid.UUID
	Row                int
	PhotosPerRow       int
	Saved              int
	Missing            []int // indices whose save failed
	TransmissionErrors int
}

type waiter struct {
	report RowReport
	done   chan error
}

// Rig owns the capture session.
type Rig struct {
	source    camera.Source
	frames    FrameStore
	trigger   *capture.Trigger
	observers []Observer

	ctrl    chan func()
	running chan struct{} // closed once Run has started
	stopped chan struct{} // closed when Run returns
	started sync.Once

	mu      sync.Mutex
	session turntable.Session // written only by the Run goroutine
	waiters []*waiter         // Run goroutine only
}

// New creates a rig starting from session s.
func New(src camera.Source, frames FrameStore, link motor.Link, s turntable.Session, observers ...Observer) *Rig {
	return &Rig{
		source:    src,
		frames:    frames,
		trigger:   capture.NewTrigger(link, frames),
		observers: observers,
		ctrl:      make(chan func()),
		running:   make(chan struct{}),
		stopped:   make(chan struct{}),
		session:   s,
	}
}

// Run processes frames and controls until ctx is done or the source closes.
// A Rig runs once.
func (r *Rig) Run(ctx context.Context) error {
	first := false
	r.started.Do(func() { first = true })
	if !first {
		return ErrAlreadyRunning
	}
	defer close(r.stopped)

	srcCtx, cancelSrc := context.WithCancel(ctx)
	frames, err := r.source.Frames(srcCtx)
	if err != nil {
		cancelSrc()
		return fmt.Errorf("start frame source: %w", err)
	}
	close(r.running)
	debug.Info("Rig running, saving to %s", r.frames.Dir())
	r.notifySession()

	defer r.shutdown(cancelSrc, frames)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-r.ctrl:
			fn()
		case f, ok := <-frames:
			if !ok {
				debug.Info("Frame source closed")
				return nil
			}
			r.onFrame(ctx, f)
		}
	}
}

// Ready is closed once Run has started the frame source.
func (r *Rig) Ready() <-chan struct{} {
	return r.running
}

// Done is closed when Run returns.
func (r *Rig) Done() <-chan struct{} {
	return r.stopped
}

// Running reports whether Run is processing frames.
func (r *Rig) Running() bool {
	select {
	case <-r.stopped:
		return false
	default:
	}
	select {
	case <-r.running:
		return true
	default:
		return false
	}
}

func (r *Rig) onFrame(ctx context.Context, f camera.Frame) {
	r.frames.Put(f)

	s := r.current()
	if !s.Active {
		return
	}
	next, out := r.trigger.OnFrameReady(ctx, s)
	r.setSession(next)

	for _, w := range r.waiters {
		if w.report.SessionID != s.ID {
			continue
		}
		switch out.Result {
		case capture.Saved:
			w.report.Saved++
		case capture.PersistenceFailed:
			w.report.Missing = append(w.report.Missing, out.Index)
		case capture.TransmissionFailed:
			w.report.TransmissionErrors++
		}
	}

	for _, o := range r.observers {
		o.FrameCaptured(out)
	}
	if next != s {
		r.notifySession()
	}
	if out.RowComplete {
		r.finish(s.ID)
	}
}

// finish hands the report to the waiters of session id.
func (r *Rig) finish(id uuid.UUID) {
	kept := r.waiters[:0]
	for _, w := range r.waiters {
		if w.report.SessionID == id {
			w.done <- nil
			continue
		}
		kept = append(kept, w)
	}
	r.waiters = kept
}

// shutdown stops the source and waits for it to close frames, so no
// producer goroutine outlives Run. Pending waiters fail with ErrNotRunning.
func (r *Rig) shutdown(cancelSrc context.CancelFunc, frames <-chan camera.Frame) {
	cancelSrc()
	for range frames {
	}
	r.release(ErrNotRunning)

	s, dir := r.current(), r.frames.Dir()
	for _, o := range r.observers {
		if so, ok := o.(StopObserver); ok {
			so.RigStopped(s, dir)
		}
	}
	debug.Info("Rig stopped")
}

// release fails every pending waiter with err.
func (r *Rig) release(err error) {
	for _, w := range r.waiters {
		w.done <- err
	}
	r.waiters = nil
}

func (r *Rig) current() turntable.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Rig) setSession(s turntable.Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

func (r *Rig) notifySession() {
	s, dir := r.current(), r.frames.Dir()
	for _, o := range r.observers {
		o.SessionChanged(s, dir)
	}
}

// do runs fn on the rig goroutine and returns its error.
func (r *Rig) do(ctx context.Context, fn func() error) error {
	if !r.Running() {
		return ErrNotRunning
	}
	errc := make(chan error, 1)
	select {
	case r.ctrl <- func() { errc <- fn() }:
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// update applies change to the session and notifies observers when it
// succeeds.
func (r *Rig) update(ctx context.Context, change func(turntable.Session) (turntable.Session, error)) error {
	return r.do(ctx, func() error {
		next, err := change(r.current())
		if err != nil {
			return err
		}
		if next.ID != r.current().ID || !next.Active {
			r.release(ErrInterrupted)
		}
		r.setSession(next)
		r.notifySession()
		return nil
	})
}

// Session returns a snapshot of the session.
func (r *Rig) Session() turntable.Session {
	return r.current()
}

// Folder returns the destination folder of photos.
func (r *Rig) Folder() string {
	return r.frames.Dir()
}

// Rotate arms the session in direction d, replacing the other direction.
func (r *Rig) Rotate(ctx context.Context, d turntable.Direction) error {
	return r.update(ctx, func(s turntable.Session) (turntable.Session, error) {
		debug.Info("Rotate %s", d)
		return s.Arm(d)
	})
}

// Stop deactivates the session. A step already sent still completes.
func (r *Rig) Stop(ctx context.Context) error {
	return r.update(ctx, func(s turntable.Session) (turntable.Session, error) {
		debug.Info("Stop")
		return s.Disarm(), nil
	})
}

// SetPhotosPerRow changes how a revolution is split and resets the session.
func (r *Rig) SetPhotosPerRow(ctx context.Context, n int) error {
	if !turntable.ValidPhotosPerRow(n) {
		return fmt.Errorf("%w, got %d", turntable.ErrInvalidPhotosPerRow, n)
	}
	return r.update(ctx, func(s turntable.Session) (turntable.Session, error) {
		debug.Info("Photos per row: %d", n)
		return s.WithPhotosPerRow(n)
	})
}

// SetRow sets the row used in file names.
func (r *Rig) SetRow(ctx context.Context, row int) error {
	if row < 0 {
		return fmt.Errorf("%w, got %d", turntable.ErrInvalidRow, row)
	}
	return r.update(ctx, func(s turntable.Session) (turntable.Session, error) {
		debug.Info("Row: %d", row)
		return s.WithRow(row)
	})
}

// NewObject stops the session, points saves at folder and starts a new
// session. An empty folder selects the platform pictures directory.
func (r *Rig) NewObject(ctx context.Context, folder string) error {
	return r.update(ctx, func(s turntable.Session) (turntable.Session, error) {
		r.frames.SetDir(folder)
		debug.Info("New object, saving to %s", r.frames.Dir())
		return s.Reset(), nil
	})
}

// RunRow arms the session in direction d and blocks until the row
// completes. It returns ErrInterrupted when the session is stopped or reset
// first. Cancelling ctx stops the rotation.
func (r *Rig) RunRow(ctx context.Context, d turntable.Direction) (RowReport, error) {
	w := &waiter{done: make(chan error, 1)}
	err := r.do(ctx, func() error {
		next, err := r.current().Arm(d)
		if err != nil {
			return err
		}
		r.setSession(next)
		w.report = RowReport{SessionID: next.ID, Row: next.RowNumber, PhotosPerRow: next.PhotosPerRow}
		r.waiters = append(r.waiters, w)
		r.notifySession()
		return nil
	})
	if err != nil {
		return RowReport{}, err
	}

	select {
	case err := <-w.done:
		return w.report, err
	case <-ctx.Done():
		stopCtx := context.WithoutCancel(ctx)
		if err := r.Stop(stopCtx); err != nil && !errors.Is(err, ErrNotRunning) {
			debug.Error(err)
		}
		<-w.done
		return w.report, ctx.Err()
	}
}
