package web

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrFolderNotAllowed is returned for an output folder outside the roots a
// web client may select.
var ErrFolderNotAllowed = errors.New("folder not allowed")

// FolderPolicy bounds the output folders selectable through POST /object.
// Roots are absolute directories; a folder must be one of them or lie
// below one. AllowAny lifts the bound but still requires an absolute path.
type FolderPolicy struct {
	Roots    []string
	AllowAny bool
}

// Check returns folder cleaned, or ErrFolderNotAllowed. The empty folder
// selects the platform pictures directory and is always accepted.
func (p FolderPolicy) Check(folder string) (string, error) {
	if folder == "" {
		return "", nil
	}
	if !filepath.IsAbs(folder) {
		return "", fmt.Errorf("%w: %q is not an absolute path", ErrFolderNotAllowed, folder)
	}
	folder = filepath.Clean(folder)
	if p.AllowAny {
		return folder, nil
	}
	for _, root := range p.Roots {
		if root == "" || !filepath.IsAbs(root) {
			continue
		}
		rel, err := filepath.Rel(filepath.Clean(root), folder)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return folder, nil
		}
	}
	return "", fmt.Errorf("%w: %s is outside %s", ErrFolderNotAllowed, folder, strings.Join(p.Roots, ", "))
}
