package rig

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/cjeanneret/TurnGo/internal/logic/capture"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
)

// manualSource delivers frames only when the test pushes them. Like a
// real source it closes the channel once ctx is done.
type manualSource struct {
	ch  chan camera.Frame
	err error
}

func newManualSource() *manualSource {
	return &manualSource{ch: make(chan camera.Frame)}
}

func (m *manualSource) Frames(ctx context.Context) (<-chan camera.Frame, error) {
	if m.err != nil {
		return nil, m.err
	}
	go func() {
		<-ctx.Done()
		close(m.ch)
	}()
	return m.ch, nil
}

func (m *manualSource) push(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case m.ch <- camera.Frame{Seq: uint64(i + 1), Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}:
		case <-time.After(2 * time.Second):
			t.Fatalf("rig did not take frame %d", i)
		}
	}
}

// fakeStore records saves instead of writing files.
type fakeStore struct {
	mu    sync.Mutex
	dir   string
	puts  int
	saves []string
	fail  map[int]bool
}

func (f *fakeStore) Put(camera.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
}

func (f *fakeStore) Dir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir
}

func (f *fakeStore) SetDir(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir = dir
}

func (f *fakeStore) SaveCurrentFrame(row, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := camera.FileName(row, index)
	path := filepath.Join(f.dir, name)
	if f.fail[index] {
		return path, errors.New("disk full")
	}
	f.saves = append(f.saves, name)
	return path, nil
}

func (f *fakeStore) saved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

type echoLink struct {
	mu       sync.Mutex
	commands []int8
	fail     bool
}

func (l *echoLink) SendStep(_ context.Context, command int8) (motor.Confirmation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, command)
	if l.fail {
		return motor.Failed, motor.ErrNoReply
	}
	if command > 0 {
		return motor.Forward, nil
	}
	return motor.Backward, nil
}

func (l *echoLink) sent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

type recordingObserver struct {
	mu       sync.Mutex
	sessions []turntable.Session
	outcomes []capture.Outcome
	stopped  []turntable.Session
}

func (o *recordingObserver) RigStopped(s turntable.Session, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, s)
}

func (o *recordingObserver) SessionChanged(s turntable.Session, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, s)
}

func (o *recordingObserver) FrameCaptured(out capture.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions), len(o.outcomes)
}

type harness struct {
	rig    *Rig
	src    *manualSource
	store  *fakeStore
	link   *echoLink
	obs    *recordingObserver
	cancel context.CancelFunc
	errc   chan error
}

func start(t *testing.T, photosPerRow, row int) *harness {
	t.Helper()
	s, err := turntable.NewSession(photosPerRow, row)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		src:   newManualSource(),
		store: &fakeStore{dir: "/photos"},
		link:  &echoLink{},
		obs:   &recordingObserver{},
		errc:  make(chan error, 1),
	}
	h.rig = New(h.src, h.store, h.link, s, h.obs)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.rig.Run(ctx) }()
	select {
	case <-h.rig.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("rig did not start")
	}
	t.Cleanup(func() {
		cancel()
		<-h.rig.Done()
	})
	return h
}

func TestRig_ControlsBeforeRun(t *testing.T) {
	s, _ := turntable.NewSession(100, 0)
	r := New(newManualSource(), &fakeStore{}, &echoLink{}, s)
	ctx := context.Background()

	if r.Running() {
		t.Error("rig should not be running before Run")
	}
	if err := r.Rotate(ctx, turntable.Negative); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Rotate before Run = %v, want ErrNotRunning", err)
	}
	if _, err := r.RunRow(ctx, turntable.Negative); !errors.Is(err, ErrNotRunning) {
		t.Errorf("RunRow before Run = %v, want ErrNotRunning", err)
	}
	if r.Session() != s {
		t.Error("Session() should return the initial session before Run")
	}
}

func TestRig_RunRow(t *testing.T) {
	h := start(t, 80, 2)

	type result struct {
		report RowReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := h.rig.RunRow(context.Background(), turntable.Negative)
		done <- result{rep, err}
	}()

	// Wait for the rig to be armed before pushing frames.
	deadline := time.Now().Add(2 * time.Second)
	for !h.rig.Session().Active {
		if time.Now().After(deadline) {
			t.Fatal("RunRow did not arm the session")
		}
		time.Sleep(time.Millisecond)
	}
	h.src.push(t, 80)

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("RunRow: %v", res.err)
		}
		if res.report.Saved != 80 || res.report.Row != 2 || len(res.report.Missing) != 0 {
			t.Errorf("report = %+v", res.report)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunRow did not return after a full row")
	}

	saves := h.store.saved()
	if len(saves) != 80 || saves[0] != "frame2_79.jpg" || saves[79] != "frame2_0.jpg" {
		t.Errorf("saves = %v ... (%d)", saves[:min(3, len(saves))], len(saves))
	}

	// Further frames are taken but send nothing.
	h.src.push(t, 5)
	if n := h.link.sent(); n != 80 {
		t.Errorf("sent %d commands, want 80", n)
	}
	if s := h.rig.Session(); s.Active || s.PhotosTakenInRow != 0 {
		t.Errorf("session after row = %+v", s)
	}
}

func TestRig_StopInterruptsRunRow(t *testing.T) {
	h := start(t, 100, 0)
	errc := make(chan error, 1)
	go func() {
		_, err := h.rig.RunRow(context.Background(), turntable.Positive)
		errc <- err
	}()
	for !h.rig.Session().Active {
		time.Sleep(time.Millisecond)
	}
	h.src.push(t, 3)

	if err := h.rig.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("RunRow error = %v, want ErrInterrupted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunRow did not return after Stop")
	}

	h.src.push(t, 3)
	if n := h.link.sent(); n != 3 {
		t.Errorf("sent %d commands, want 3", n)
	}
	if s := h.rig.Session(); s.Active || s.PhotosTakenInRow != 0 || s.CurrentStepIndex != 0 {
		t.Errorf("session after Stop = %+v", s)
	}
}

func TestRig_RunRowContextCancel(t *testing.T) {
	h := start(t, 100, 0)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := h.rig.RunRow(ctx, turntable.Negative)
		errc <- err
	}()
	for !h.rig.Session().Active {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunRow error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunRow did not return after cancel")
	}
	if h.rig.Session().Active {
		t.Error("cancelled RunRow should stop the rotation")
	}
}

func TestRig_Controls(t *testing.T) {
	h := start(t, 100, 0)
	ctx := context.Background()

	if err := h.rig.Rotate(ctx, turntable.Positive); err != nil {
		t.Fatal(err)
	}
	if err := h.rig.Rotate(ctx, turntable.Negative); err != nil {
		t.Fatal(err)
	}
	if s := h.rig.Session(); !s.Active || s.Direction != turntable.Negative {
		t.Errorf("session = %+v, want active negative", s)
	}
	if err := h.rig.Rotate(ctx, turntable.None); !errors.Is(err, turntable.ErrInvalidDirection) {
		t.Errorf("Rotate(None) = %v", err)
	}

	h.src.push(t, 2)

	if err := h.rig.SetRow(ctx, 4); err != nil {
		t.Fatal(err)
	}
	if s := h.rig.Session(); s.RowNumber != 4 || s.PhotosTakenInRow != 2 {
		t.Errorf("SetRow changed progress: %+v", s)
	}
	if err := h.rig.SetRow(ctx, -1); !errors.Is(err, turntable.ErrInvalidRow) {
		t.Errorf("SetRow(-1) = %v", err)
	}

	id := h.rig.Session().ID
	if err := h.rig.SetPhotosPerRow(ctx, 400); err != nil {
		t.Fatal(err)
	}
	s := h.rig.Session()
	if s.Active || s.PhotosPerRow != 400 || s.StepsPerPhoto != 2 || s.ID == id || s.RowNumber != 4 {
		t.Errorf("after SetPhotosPerRow: %+v", s)
	}
	if err := h.rig.SetPhotosPerRow(ctx, 300); !errors.Is(err, turntable.ErrInvalidPhotosPerRow) {
		t.Errorf("SetPhotosPerRow(300) = %v", err)
	}

	id = s.ID
	if err := h.rig.NewObject(ctx, "/photos/vase"); err != nil {
		t.Fatal(err)
	}
	if h.rig.Folder() != "/photos/vase" || h.rig.Session().ID == id {
		t.Errorf("NewObject: folder=%q session=%+v", h.rig.Folder(), h.rig.Session())
	}
}

func TestRig_ObserversSeeOutcomes(t *testing.T) {
	h := start(t, 100, 1)
	h.store.fail = map[int]bool{98: true}
	ctx := context.Background()

	if err := h.rig.Rotate(ctx, turntable.Negative); err != nil {
		t.Fatal(err)
	}
	h.src.push(t, 3)
	if err := h.rig.Stop(ctx); err != nil { // syncs with the loop
		t.Fatal(err)
	}

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	var results []string
	for _, o := range h.obs.outcomes {
		results = append(results, fmt.Sprintf("%s:%d", o.Result, o.Index))
	}
	want := []string{"saved:99", "persistence_error:98", "saved:97"}
	if fmt.Sprint(results) != fmt.Sprint(want) {
		t.Errorf("outcomes = %v, want %v", results, want)
	}
	if len(h.obs.sessions) < 5 {
		t.Errorf("saw %d session changes, want at least 5", len(h.obs.sessions))
	}
}

func TestRig_TransmissionFailureCounted(t *testing.T) {
	h := start(t, 100, 0)
	h.link.mu.Lock()
	h.link.fail = true
	h.link.mu.Unlock()

	if err := h.rig.Rotate(context.Background(), turntable.Negative); err != nil {
		t.Fatal(err)
	}
	h.src.push(t, 4)
	if err := h.rig.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, outcomes := h.obs.counts()
	if outcomes != 4 {
		t.Errorf("outcomes = %d, want 4 (one per frame)", outcomes)
	}
	if len(h.store.saved()) != 0 {
		t.Error("failed steps must not save")
	}
}

func TestRig_SourceError(t *testing.T) {
	src := newManualSource()
	src.err = camera.ErrNoDevice
	s, _ := turntable.NewSession(100, 0)
	r := New(src, &fakeStore{}, &echoLink{}, s)
	if err := r.Run(context.Background()); !errors.Is(err, camera.ErrNoDevice) {
		t.Errorf("Run = %v, want ErrNoDevice", err)
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
	if r.Running() {
		t.Error("rig should not be running")
	}
}

func TestRig_FramesReachStore(t *testing.T) {
	h := start(t, 100, 0)
	h.src.push(t, 3)
	h.cancel()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.store.puts != 3 {
		t.Errorf("puts = %d, want 3", h.store.puts)
	}
}

// lingeringSource keeps its producer busy for a while after ctx is done.
type lingeringSource struct {
	linger time.Duration
	closed atomic.Bool
}

func (l *lingeringSource) Frames(ctx context.Context) (<-chan camera.Frame, error) {
	out := make(chan camera.Frame)
	go func() {
		defer close(out)
		<-ctx.Done()
		time.Sleep(l.linger)
		l.closed.Store(true)
	}()
	return out, nil
}

func TestRig_RunWaitsForSource(t *testing.T) {
	src := &lingeringSource{linger: 50 * time.Millisecond}
	s, _ := turntable.NewSession(100, 0)
	r := New(src, &fakeStore{}, &echoLink{}, s)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	<-r.Ready()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !src.closed.Load() {
		t.Error("Run returned before the source closed its channel")
	}
	select {
	case <-r.Done():
	default:
		t.Error("Done should be closed once Run returned")
	}
}

func TestRig_StopObserverSeesLastSession(t *testing.T) {
	h := start(t, 100, 3)
	if err := h.rig.Rotate(context.Background(), turntable.Positive); err != nil {
		t.Fatal(err)
	}
	h.cancel()
	<-h.rig.Done()

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if len(h.obs.stopped) != 1 {
		t.Fatalf("RigStopped called %d times, want 1", len(h.obs.stopped))
	}
	if got := h.obs.stopped[0]; got != h.rig.Session() || got.RowNumber != 3 || !got.Active {
		t.Errorf("last session = %+v", got)
	}
	if h.rig.Running() {
		t.Error("rig should not be running after Done")
	}
}
