package turntable

import (
	"errors"
	"testing"

	"github.com/cjeanneret/TurnGo/internal/hw/motor"
)

func TestAdvance_Wraparound(t *testing.T) {
	cases := []struct {
		name         string
		photosPerRow int
		index        int
		confirmation motor.Confirmation
		want         int
	}{
		{"zero backward wraps to last", 100, 0, motor.Backward, 99},
		{"last forward wraps to zero", 100, 99, motor.Forward, 0},
		{"interior forward", 100, 42, motor.Forward, 43},
		{"interior backward", 100, 42, motor.Backward, 41},
		{"zero forward", 100, 0, motor.Forward, 1},
		{"last backward", 100, 99, motor.Backward, 98},
		{"80 zero backward", 80, 0, motor.Backward, 79},
		{"800 last forward", 800, 799, motor.Forward, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustSession(t, tc.photosPerRow, 0)
			s.CurrentStepIndex = tc.index

			next, idx, done, err := Advance(s, tc.confirmation)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if idx != tc.want || next.CurrentStepIndex != tc.want {
				t.Errorf("index = %d (session %d), want %d", idx, next.CurrentStepIndex, tc.want)
			}
			if done {
				t.Error("a single step must not complete the row")
			}
			if next.PhotosTakenInRow != 1 {
				t.Errorf("PhotosTakenInRow = %d, want 1", next.PhotosTakenInRow)
			}
		})
	}
}

func TestAdvance_IndexStaysInRange(t *testing.T) {
	for _, n := range PhotosPerRowChoices {
		for _, c := range []motor.Confirmation{motor.Forward, motor.Backward} {
			s := mustSession(t, n, 0)
			s, _ = s.Arm(Positive)
			for i := 0; i < n; i++ {
				var idx int
				var err error
				s, idx, _, err = Advance(s, c)
				if err != nil {
					t.Fatal(err)
				}
				if idx < 0 || idx >= n {
					t.Fatalf("photosPerRow=%d confirmation=%d step %d: index %d out of range", n, c, i, idx)
				}
			}
		}
	}
}

func TestAdvance_FullRowCompletes(t *testing.T) {
	s := mustSession(t, 100, 2)
	s, _ = s.Arm(Negative)

	var got []int
	var done bool
	for i := 0; i < 100; i++ {
		if done {
			t.Fatalf("row completed early after %d steps", i)
		}
		var idx int
		var err error
		s, idx, done, err = Advance(s, motor.Backward)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, idx)
	}

	if !done {
		t.Fatal("row should be complete after 100 confirmations")
	}
	if s.Active || s.Direction != None || s.PhotosTakenInRow != 0 || s.CurrentStepIndex != 0 {
		t.Errorf("completed session = %+v, want inactive with zero counters", s)
	}
	if s.RowNumber != 2 {
		t.Errorf("RowNumber = %d, row must not advance on its own", s.RowNumber)
	}
	for i, idx := range got {
		if want := 99 - i; idx != want {
			t.Fatalf("photo %d index = %d, want %d", i, idx, want)
		}
	}
}

func TestAdvance_FirstBackwardFromZero(t *testing.T) {
	s := mustSession(t, 100, 2)
	s, _ = s.Arm(Negative)

	s, idx, done, err := Advance(s, motor.Backward)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 99 || done || s.PhotosTakenInRow != 1 || !s.Active {
		t.Errorf("idx=%d done=%v session=%+v", idx, done, s)
	}
}

func TestAdvance_RejectsInvalidConfirmation(t *testing.T) {
	s := mustSession(t, 100, 0)
	s, _ = s.Arm(Positive)
	s.CurrentStepIndex = 10
	s.PhotosTakenInRow = 3

	for _, c := range []motor.Confirmation{motor.Failed, 2, -4, 127} {
		next, _, done, err := Advance(s, c)
		if !errors.Is(err, ErrInvalidConfirmation) {
			t.Errorf("Advance(%d) error = %v, want ErrInvalidConfirmation", c, err)
		}
		if next != s || done {
			t.Errorf("Advance(%d) mutated the session: %+v", c, next)
		}
	}
}

func TestAdvance_RejectsBrokenSession(t *testing.T) {
	s := Session{PhotosPerRow: 0}
	if _, _, _, err := Advance(s, motor.Forward); !errors.Is(err, ErrInvalidPhotosPerRow) {
		t.Errorf("error = %v, want ErrInvalidPhotosPerRow", err)
	}
}
