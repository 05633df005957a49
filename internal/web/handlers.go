package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/logic/geometry"
	"github.com/cjeanneret/TurnGo/internal/logic/rig"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
)

// MaxBodyBytes bounds the JSON body of control requests.
const MaxBodyBytes = 1 << 20

// Controller is the rig as seen by the handlers. *rig.Rig implements it.
type Controller interface {
	Running() bool
	Session() turntable.Session
	Folder() string
	Rotate(ctx context.Context, d turntable.Direction) error
	Stop(ctx context.Context) error
	SetPhotosPerRow(ctx context.Context, n int) error
	SetRow(ctx context.Context, row int) error
	NewObject(ctx context.Context, folder string) error
}

var _ Controller = (*rig.Rig)(nil)

// FormConfig holds default values for the control form (from config).
type FormConfig struct {
	PhotosPerRow        int    `json:"photos_per_row"`
	PhotosPerRowChoices []int  `json:"photos_per_row_choices"`
	Row                 int    `json:"row"`
	Folder              string `json:"folder"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Rig          Controller
	FormDefaults FormConfig
	Folders      FolderPolicy
	steps        *geometry.StepsCalculator
	staticFS     fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If ctrl is nil, control requests return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl Controller, steps *geometry.StepsCalculator, formDefaults FormConfig, folders FolderPolicy, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Rig:          ctrl,
		FormDefaults: formDefaults,
		Folders:      folders,
		steps:        steps,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// ServeIndex serves the control page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, "index.html")
}

// ServeViewer serves the 360° viewer page.
func (h *Handlers) ServeViewer(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, "viewer.html")
}

func (h *Handlers) servePage(w http.ResponseWriter, name string) {
	data, err := fs.ReadFile(h.staticFS, name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSession returns the current session.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	if h.Rig == nil {
		http.Error(w, "rig not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(h.Rig.Session(), h.Rig.Folder(), h.Rig.Running()))
}

type rotateRequest struct {
	Direction string `json:"direction"`
}

// HandleRotate handles POST /rotate {"direction":"positive|negative"}.
func (h *Handlers) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := turntable.ParseDirection(req.Direction)
	if err == nil && d == turntable.None {
		err = turntable.ErrInvalidDirection
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.control(w, r, func(ctx context.Context) error { return h.Rig.Rotate(ctx, d) })
}

// HandleStop handles POST /stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(ctx context.Context) error { return h.Rig.Stop(ctx) })
}

type photosPerRowRequest struct {
	PhotosPerRow int `json:"photos_per_row"`
}

// HandlePhotosPerRow handles POST /photos-per-row {"photos_per_row":N}.
func (h *Handlers) HandlePhotosPerRow(w http.ResponseWriter, r *http.Request) {
	var req photosPerRowRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !turntable.ValidPhotosPerRow(req.PhotosPerRow) {
		http.Error(w, fmt.Sprintf("photos_per_row must be one of %v", turntable.PhotosPerRowChoices), http.StatusBadRequest)
		return
	}
	h.control(w, r, func(ctx context.Context) error { return h.Rig.SetPhotosPerRow(ctx, req.PhotosPerRow) })
}

type rowRequest struct {
	Row *int `json:"row"`
}

// HandleRow handles POST /row {"row":R}.
func (h *Handlers) HandleRow(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Row == nil || *req.Row < 0 {
		http.Error(w, "row must be an integer >= 0", http.StatusBadRequest)
		return
	}
	h.control(w, r, func(ctx context.Context) error { return h.Rig.SetRow(ctx, *req.Row) })
}

type objectRequest struct {
	Folder string `json:"folder"`
}

// HandleObject handles POST /object {"folder":"..."}. An empty folder
// selects the platform pictures directory; any other folder must pass
// h.Folders.
func (h *Handlers) HandleObject(w http.ResponseWriter, r *http.Request) {
	var req objectRequest
	if !h.decode(w, r, &req) {
		return
	}
	folder, err := h.Folders.Check(req.Folder)
	if err != nil {
		debug.Warn("Object folder refused: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.control(w, r, func(ctx context.Context) error { return h.Rig.NewObject(ctx, folder) })
}

// HandleFrames handles GET /frames?row=R and lists saved photos of a row.
func (h *Handlers) HandleFrames(w http.ResponseWriter, r *http.Request) {
	if h.Rig == nil {
		http.Error(w, "rig not configured", http.StatusServiceUnavailable)
		return
	}
	s := h.Rig.Session()
	row := s.RowNumber
	if v := r.URL.Query().Get("row"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "row must be an integer >= 0", http.StatusBadRequest)
			return
		}
		row = n
	}

	saved, err := camera.List(h.Rig.Folder(), row)
	if err != nil {
		debug.Error(err)
		http.Error(w, "cannot list photos", http.StatusInternalServerError)
		return
	}
	frames := make([]FrameView, 0, len(saved))
	for _, f := range saved {
		v := FrameView{Name: f.Name, URL: "/photos/" + url.PathEscape(f.Name), Row: f.Row, Index: f.Index}
		if h.steps != nil {
			v.AngleDeg = h.steps.AngleForIndex(f.Index, s.PhotosPerRow)
		}
		frames = append(frames, v)
	}
	writeJSON(w, http.StatusOK, frames)
}

// ServePhotos serves saved frames of the current output folder under
// /photos/frame<row>_<index>.jpg. Any other name is 404.
func (h *Handlers) ServePhotos(w http.ResponseWriter, r *http.Request) {
	if h.Rig == nil {
		http.Error(w, "rig not configured", http.StatusServiceUnavailable)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/photos/")
	if _, _, ok := camera.ParseFileName(name); !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(filepath.Join(h.Rig.Folder(), name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// decode reads a JSON body into v. It writes the error response and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// control runs fn against the rig and writes the new session.
func (h *Handlers) control(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	if h.Rig == nil {
		http.Error(w, "rig not configured", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSessionView(h.Rig.Session(), h.Rig.Folder(), h.Rig.Running()))
}

func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rig.ErrNotRunning):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, turntable.ErrInvalidDirection),
		errors.Is(err, turntable.ErrInvalidPhotosPerRow),
		errors.Is(err, turntable.ErrInvalidRow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "rig busy", http.StatusGatewayTimeout)
	default:
		debug.Error(err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
