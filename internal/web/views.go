package web

import (
	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/logic/capture"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
)

// SessionView is the JSON form of a session.
type SessionView struct {
	ID               string `json:"id"`
	Running          bool   `json:"running"`
	Active           bool   `json:"active"`
	Direction        string `json:"direction"`
	PhotosPerRow     int    `json:"photos_per_row"`
	StepsPerPhoto    int    `json:"steps_per_photo"`
	CurrentStepIndex int    `json:"current_step_index"`
	PhotosTakenInRow int    `json:"photos_taken_in_row"`
	Row              int    `json:"row"`
	Folder           string `json:"folder"`
}

func NewSessionView(s turntable.Session, folder string, running bool) SessionView {
	return SessionView{
		ID:               s.ID.String(),
		Running:          running,
		Active:           s.Active,
		Direction:        s.Direction.String(),
		PhotosPerRow:     s.PhotosPerRow,
		StepsPerPhoto:    s.StepsPerPhoto,
		CurrentStepIndex: s.CurrentStepIndex,
		PhotosTakenInRow: s.PhotosTakenInRow,
		Row:              s.RowNumber,
		Folder:           folder,
	}
}

// CaptureView is the JSON form of a capture outcome.
type CaptureView struct {
	Result       string `json:"result"`
	Command      int8   `json:"command"`
	Confirmation int8   `json:"confirmation"`
	Row          int    `json:"row"`
	Index        int    `json:"index"`
	File         string `json:"file,omitempty"`
	RowComplete  bool   `json:"row_complete"`
	Taken        int    `json:"photos_taken_in_row"`
	Error        string `json:"error,omitempty"`
}

func NewCaptureView(o capture.Outcome) CaptureView {
	v := CaptureView{
		Result:       o.Result.String(),
		Command:      o.Command,
		Confirmation: int8(o.Confirmation),
		Row:          o.Row,
		Index:        o.Index,
		RowComplete:  o.RowComplete,
		Taken:        o.Session.PhotosTakenInRow,
	}
	if o.Result == capture.Saved || o.Result == capture.PersistenceFailed {
		v.File = camera.FileName(o.Row, o.Index)
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// FrameView describes a saved photo for the viewer.
type FrameView struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Row      int     `json:"row"`
	Index    int     `json:"index"`
	AngleDeg float64 `json:"angle_deg"`
}
