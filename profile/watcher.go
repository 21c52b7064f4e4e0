package profile

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks the set of profiles available in a directory and reports
// changes so clients can refresh their profile lists without polling.
type Watcher struct {
	dir     string
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	updates chan []string
	done    chan struct{}
}

// ListProfiles scans a directory for profile files and returns their names
// (file names without the extension), sorted.
func ListProfiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(ExpandPath(dir))
	if err != nil {
		return nil, fmt.Errorf("read profile directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, Extension) || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, Extension))
	}
	sort.Strings(names)
	return names, nil
}

// NewWatcher starts watching a profile directory. The directory must exist.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	dir = ExpandPath(dir)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch profile directory: %w", err)
	}

	w := &Watcher{
		dir:     dir,
		logger:  logger,
		fsw:     fsw,
		updates: make(chan []string, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Updates delivers the full sorted profile list after each change. Only the
// latest list is retained; a slow reader sees the newest state, not every
// intermediate one.
func (w *Watcher) Updates() <-chan []string {
	return w.updates
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, Extension) {
				continue
			}
			if !ev.Has(fsnotify.Create | fsnotify.Remove | fsnotify.Rename | fsnotify.Write) {
				continue
			}
			names, err := ListProfiles(w.dir)
			if err != nil {
				w.logger.Warn("profile rescan failed", "dir", w.dir, "error", err)
				continue
			}
			w.publish(names)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("profile watcher error", "error", err)
		}
	}
}

// publish replaces any undelivered list with the newest one.
func (w *Watcher) publish(names []string) {
	for {
		select {
		case w.updates <- names:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}
