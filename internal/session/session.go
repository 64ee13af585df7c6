// Package session guards a working directory against concurrent emrun
// sessions using marker files.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrSessionAlreadyActive is returned when a marker file is present in the
// working directory.
var ErrSessionAlreadyActive = errors.New("session already active")

// Info is the content of emrun's own marker file.
type Info struct {
	SessionID string    `toml:"session_id"`
	PID       int       `toml:"pid"`
	WorkDir   string    `toml:"work_dir"`
	StartedAt time.Time `toml:"started_at"`
}

// Guard detects and writes session markers in one directory.
type Guard struct {
	Dir string
	// Marker is the file name emrun writes for its own sessions.
	Marker string
	// Patterns are additional glob patterns (relative to Dir) whose
	// matches also indicate an active session.
	Patterns []string
}

// MarkerPath is the absolute path of emrun's own marker.
func (g Guard) MarkerPath() string {
	return filepath.Join(g.Dir, g.Marker)
}

// Active lists marker files currently present, sorted and de-duplicated.
func (g Guard) Active() ([]string, error) {
	seen := make(map[string]struct{})
	var found []string
	for _, pattern := range append([]string{g.Marker}, g.Patterns...) {
		if pattern == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(g.Dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("marker pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			found = append(found, m)
		}
	}
	sort.Strings(found)
	return found, nil
}

// CheckNoneActive returns ErrSessionAlreadyActive when any marker exists.
// It never modifies the directory.
func (g Guard) CheckNoneActive() error {
	found, err := g.Active()
	if err != nil {
		return err
	}
	if len(found) > 0 {
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = filepath.Base(f)
		}
		return fmt.Errorf("%w in %s (marker: %v)", ErrSessionAlreadyActive, g.Dir, names)
	}
	return nil
}

// Clear removes every marker currently present in Dir and returns the
// removed paths. It is meant for the end of a session that passed
// CheckNoneActive: markers found then were created during that session.
func (g Guard) Clear() ([]string, error) {
	found, err := g.Active()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, path := range found {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove session marker %s: %w", filepath.Base(path), err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

// Acquire writes emrun's marker. The marker is created exclusively, so a
// second emrun racing past CheckNoneActive fails here instead.
func (g Guard) Acquire(info Info) (*Lock, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(info); err != nil {
		return nil, fmt.Errorf("encode session marker: %w", err)
	}
	path := g.MarkerPath()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w in %s (marker: [%s])", ErrSessionAlreadyActive, g.Dir, g.Marker)
	}
	if err != nil {
		return nil, fmt.Errorf("create session marker: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write session marker: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close session marker: %w", err)
	}
	return &Lock{path: path}, nil
}

// ReadMarker decodes an emrun marker file.
func ReadMarker(path string) (Info, error) {
	var info Info
	if _, err := toml.DecodeFile(path, &info); err != nil {
		return Info{}, fmt.Errorf("read session marker %s: %w", path, err)
	}
	return info, nil
}

// Lock is a held session marker.
type Lock struct {
	path string
}

func (l *Lock) Path() string { return l.path }

// Release removes the marker. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session marker: %w", err)
	}
	return nil
}
