package debug

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestLevels_FilterByThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelLive)
	defer Init(LevelOff)

	Info("info %d", 1)
	Live("live %d", 2)
	Verbose("verbose %d", 3)
	Trace("trace %d", 4)

	got := buf.String()
	for _, want := range []string{"[INFO] info 1", "[LIVE] live 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"verbose 3", "trace 4"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("output should not contain %q:\n%s", unwanted, got)
		}
	}
}

func TestOff_NoOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelOff)

	Warn("nothing")
	Photo(1, 2, "/tmp/frame1_2.jpg")

	if buf.Len() != 0 {
		t.Errorf("expected no output at LevelOff, got %q", buf.String())
	}
}

func TestCommandAndPhotoFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelTrace)
	defer Init(LevelOff)

	Command(-4, -1)
	Photo(2, 99, "out/frame2_99.jpg")
	Serial("tx", []byte{0xfc})

	got := buf.String()
	for _, want := range []string{
		"Step command -4 -> confirmation -1",
		"row=2 index=99 saved to out/frame2_99.jpg",
		"[SERIAL] tx fc",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestIsEnabled(t *testing.T) {
	Init(LevelVerbose)
	defer Init(LevelOff)

	if !IsEnabled(LevelInfo) {
		t.Error("LevelInfo should be enabled at LevelVerbose")
	}
	if IsEnabled(LevelTrace) {
		t.Error("LevelTrace should not be enabled at LevelVerbose")
	}
}

// Frame producers keep logging while the CLI reconfigures output.
func TestReconfigureWhileLogging(t *testing.T) {
	SetOutput(io.Discard)
	defer Init(LevelOff)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				Trace("frame %d dropped", i)
				Section("producer")
				_ = IsEnabled(LevelLive)
			}
		}()
	}
	for n := 0; n < 200; n++ {
		Init(n % 5)
		SetOutput(io.Discard)
	}
	close(stop)
	wg.Wait()

	if Level() != 199%5 {
		t.Errorf("Level() = %d, want %d", Level(), 199%5)
	}
}
