package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no capture matches an ID.
	ErrNotFound = errors.New("capture not found")
	// ErrAmbiguous is returned when an ID prefix matches several captures.
	ErrAmbiguous = errors.New("capture id is ambiguous")
)

// Summary is the listing entry for a stored capture.
type Summary struct {
	ID        string
	App       string
	StartTime time.Time
	StopTime  *time.Time
	Goodbye   bool
	Path      string
}

// Store persists captures.
type Store interface {
	Save(c *Capture) (string, error)
	// Load accepts a full ID or any unique prefix of one.
	Load(id string) (*Capture, error)
	List() ([]Summary, error)
	Delete(id string) error
}

// diskStore keeps one JSON file per capture in dir.
type diskStore struct {
	dir string
}

// NewStore returns a Store backed by the XDG data directory.
// Path: $XDG_DATA_HOME/scopecomms/captures or ~/.local/share/scopecomms/captures
func NewStore() (Store, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewStoreAt(dir)
}

// NewStoreAt returns a Store rooted at dir, creating it if needed.
func NewStoreAt(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "scopecomms", "captures"), nil
}

// Save writes c atomically via a temp file and os.Rename and returns the path.
func (d *diskStore) Save(c *Capture) (path string, err error) {
	if c.ID == "" || strings.ContainsAny(c.ID, `/\`) {
		return "", fmt.Errorf("saving capture: invalid id %q", c.ID)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("saving capture: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, "capture-*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("saving capture: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("saving capture: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("saving capture: %w", err)
	}
	path = filepath.Join(d.dir, c.ID+".json")
	if err = os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("saving capture: %w", err)
	}
	return path, nil
}

func (d *diskStore) Load(id string) (*Capture, error) {
	path, err := d.resolve(id)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads a capture from any path.
func LoadFile(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing capture %s: %w", filepath.Base(path), err)
	}
	if c.Version > FormatVersion {
		return nil, fmt.Errorf("capture %s has format version %d, newer than %d", filepath.Base(path), c.Version, FormatVersion)
	}
	return &c, nil
}

// List returns every stored capture, newest first. Unreadable files are skipped.
func (d *diskStore) List() ([]Summary, error) {
	paths, err := filepath.Glob(filepath.Join(d.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	out := make([]Summary, 0, len(paths))
	for _, p := range paths {
		c, err := LoadFile(p)
		if err != nil {
			continue
		}
		out = append(out, Summary{ID: c.ID, App: c.App, StartTime: c.StartTime, StopTime: c.StopTime, Goodbye: c.Goodbye, Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (d *diskStore) Delete(id string) error {
	path, err := d.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting capture: %w", err)
	}
	return nil
}

// resolve maps an ID or unique ID prefix to its file.
func (d *diskStore) resolve(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\*?[`) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	exact := filepath.Join(d.dir, id+".json")
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}
	matches, err := filepath.Glob(filepath.Join(d.dir, id+"*.json"))
	if err != nil {
		return "", fmt.Errorf("resolving capture: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %d captures", ErrAmbiguous, id, len(matches))
	}
}
