// Package watch pushes edited source files to connected clients, so a shader
// saved in an editor reaches the running application as a library edit.
package watch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/wire"
)

// IgnoreFile lists extra glob patterns, one per line, in the watched directory.
const IgnoreFile = ".scopecommsignore"

// Pusher delivers file content to every client with a String item of that name.
type Pusher interface {
	EditByName(name string, data []byte) (int, error)
}

// Watcher watches a directory tree and pushes written files by base name.
type Watcher struct {
	dir      string
	pusher   Pusher
	patterns []string
	log      *log.Logger
	fsw      *fsnotify.Watcher
}

// New starts watching dir and every directory below it. Events are not
// handled until Run is called.
func New(dir string, p Pusher, ignorePatterns []string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Named("watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{dir: dir, pusher: p, log: logger, fsw: fsw}

	if err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	}); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w.patterns, err = loadIgnorePatterns(dir, ignorePatterns)
	if err != nil {
		logger.Warn("failed to load ignore patterns", "err", err)
	}
	return w, nil
}

// Run handles events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.log.Info("watching for source edits", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Has(fsnotify.Create) {
					_ = w.fsw.Add(event.Name)
				}
				continue
			}
			if isIgnored(w.dir, event.Name, w.patterns) {
				continue
			}
			w.push(event.Name, info.Size())

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) push(path string, size int64) {
	if size > wire.MaxDataLen {
		w.log.Warn("file too large to push", "path", path, "size", size)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Debug("reading edited file", "path", path, "err", err)
		return
	}
	name := filepath.Base(path)
	n, err := w.pusher.EditByName(name, data)
	if err != nil {
		w.log.Warn("pushing edit", "item", name, "err", err)
	}
	if n > 0 {
		w.log.Info("pushed source edit", "item", name, "bytes", len(data), "clients", n)
	}
}

// isIgnored reports whether path matches any of the given glob patterns by
// base name, path relative to dir, or full path.
func isIgnored(dir, path string, patterns []string) bool {
	rel := path
	if dir != "" {
		if r, err := filepath.Rel(dir, path); err == nil {
			rel = r
		}
	}
	base := filepath.Base(path)
	for _, pattern := range patterns {
		for _, candidate := range []string{base, rel, path} {
			if matched, _ := filepath.Match(pattern, candidate); matched {
				return true
			}
		}
	}
	return false
}

// loadIgnorePatterns merges the configured patterns with .gitignore and
// IgnoreFile in dir.
func loadIgnorePatterns(dir string, configured []string) ([]string, error) {
	patterns := append([]string(nil), configured...)
	for _, name := range []string{".gitignore", IgnoreFile} {
		extra, err := readPatternFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return patterns, err
		}
		patterns = append(patterns, extra...)
	}
	return patterns, nil
}

// readPatternFile returns the non-empty, non-comment lines of a
// gitignore-style file.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
