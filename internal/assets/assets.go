// Package assets locates bundled files such as the alert sound.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvDir overrides every other search location when set.
const EnvDir = "SIZEWATCH_ASSET_DIR"

// ErrNotFound is returned when no search location holds the asset.
var ErrNotFound = errors.New("asset not found")

// Resolver searches a list of directories for an asset.
type Resolver struct {
	Dirs []string
}

// DefaultResolver searches $SIZEWATCH_ASSET_DIR, the executable's directory
// and the working directory, in that order.
func DefaultResolver() Resolver {
	var dirs []string
	if dir := os.Getenv(EnvDir); dir != "" {
		dirs = append(dirs, dir)
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return Resolver{Dirs: dirs}
}

// Resolve returns the first existing regular file called name. Absolute
// names are checked as-is.
func (r Resolver) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if isFile(name) {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, dir := range r.Dirs {
		candidate := filepath.Join(dir, name)
		if isFile(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrNotFound, name, r.Dirs)
}

// Resolve searches the default locations.
func Resolve(name string) (string, error) {
	return DefaultResolver().Resolve(name)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
