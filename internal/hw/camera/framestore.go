package camera

import (
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cjeanneret/TurnGo/internal/debug"
)

// ErrNoFrame is returned when a save is requested before any frame arrived.
var ErrNoFrame = errors.New("no frame received yet")

var fileNameRe = regexp.MustCompile(`^frame(\d+)_(\d+)\.jpg$`)

// FileName returns the name the viewer expects for a photo.
func FileName(row, index int) string {
	return fmt.Sprintf("frame%d_%d.jpg", row, index)
}

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (row, index int, ok bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	row, err1 := strconv.Atoi(m[1])
	index, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return row, index, true
}

// DefaultDir returns the platform pictures directory: $XDG_PICTURES_DIR,
// then ~/Pictures, then the working directory.
func DefaultDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_PICTURES_DIR")); dir != "" {
		return filepath.Clean(dir)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "Pictures")
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// FrameStore keeps the most recent frame and writes it to disk on request.
type FrameStore struct {
	mu      sync.Mutex
	dir     string
	quality int
	latest  Frame
	has     bool
}

// NewFrameStore creates a store writing JPEGs of the given quality to dir.
// An empty dir means DefaultDir().
func NewFrameStore(dir string, quality int) *FrameStore {
	if dir == "" {
		dir = DefaultDir()
	}
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &FrameStore{dir: dir, quality: quality}
}

// Put records f as the current frame.
func (s *FrameStore) Put(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = f
	s.has = true
}

// Dir returns the destination folder.
func (s *FrameStore) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// SetDir changes the destination folder. An empty dir means DefaultDir().
func (s *FrameStore) SetDir(dir string) {
	if dir == "" {
		dir = DefaultDir()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = filepath.Clean(dir)
}

// SaveCurrentFrame writes the current frame to <dir>/frame<row>_<index>.jpg,
// replacing any earlier photo with the same name. The path is returned even
// when the write fails so callers can report it.
func (s *FrameStore) SaveCurrentFrame(row, index int) (string, error) {
	s.mu.Lock()
	dir, f, has, quality := s.dir, s.latest, s.has, s.quality
	s.mu.Unlock()

	path := filepath.Join(dir, FileName(row, index))
	if !has {
		return path, ErrNoFrame
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".frame-*.jpg")
	if err != nil {
		return path, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := jpeg.Encode(tmp, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		return path, fmt.Errorf("encode frame %d: %w", f.Seq, err)
	}
	if err := tmp.Close(); err != nil {
		return path, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return path, fmt.Errorf("rename to %s: %w", path, err)
	}
	debug.Verbose("FrameStore: frame %d -> %s", f.Seq, path)
	return path, nil
}

// Saved describes a photo found on disk.
type Saved struct {
	Name  string `json:"name"`
	Row   int    `json:"row"`
	Index int    `json:"index"`
}

// List returns the photos of row in dir, sorted by index. A missing
// directory yields an empty list.
func List(dir string, row int) ([]Saved, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []Saved
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		r, idx, ok := ParseFileName(e.Name())
		if !ok || r != row {
			continue
		}
		out = append(out, Saved{Name: e.Name(), Row: r, Index: idx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
