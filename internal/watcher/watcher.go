// Package watcher watches node worktrees for file changes and publishes
// debounced change events to the bus.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/caspianhq/caspian/internal/events"
)

// ignoredPatterns are path components and suffixes excluded from change
// events. Entries starting with * match file name suffixes, the rest
// match any path component.
var ignoredPatterns = []string{
	".git",
	"node_modules",
	"target",
	"dist",
	"build",
	".next",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	"*.log",
	"*.tmp",
	".DS_Store",
	"Thumbs.db",
	".env.local",
	"*.swp",
	"*.swo",
	"*~",
}

// shouldIgnore reports whether a path matches the ignore list.
func shouldIgnore(path string) bool {
	for _, pattern := range ignoredPatterns {
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(path, pattern[1:]) {
				return true
			}
			continue
		}
		for _, component := range strings.Split(filepath.ToSlash(path), "/") {
			if component == pattern {
				return true
			}
		}
	}
	return false
}

// nodeWatcher is one running watch over a node's worktree.
type nodeWatcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Manager owns one filesystem watcher per node worktree.
type Manager struct {
	bus      *events.Bus
	debounce time.Duration

	mu       sync.Mutex
	watchers map[string]*nodeWatcher
}

// NewManager creates a watcher manager publishing to bus. The debounce
// window coalesces rapid changes into a single event.
func NewManager(bus *events.Bus, debounce time.Duration) *Manager {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Manager{
		bus:      bus,
		debounce: debounce,
		watchers: make(map[string]*nodeWatcher),
	}
}

// Start begins watching a node's worktree recursively. A previous watch
// for the same node is replaced.
func (m *Manager) Start(nodeID, worktreePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.watchers[nodeID]; ok {
		existing.close()
		delete(m.watchers, nodeID)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// fsnotify is not recursive, so every subdirectory gets its own watch.
	err = filepath.WalkDir(worktreePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != worktreePath && shouldIgnore(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", worktreePath, err)
	}

	nw := &nodeWatcher{fsw: fsw, done: make(chan struct{})}
	m.watchers[nodeID] = nw
	go m.run(nodeID, worktreePath, nw)

	slog.Info("started watching worktree", "node_id", nodeID, "path", worktreePath)
	return nil
}

// run consumes fsnotify events for one node, debouncing them into
// FilesChanged bus events.
func (m *Manager) run(nodeID, worktreePath string, nw *nodeWatcher) {
	var timer *time.Timer
	var timerC <-chan time.Time
	pending := make(map[string]struct{})

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})

		m.bus.Publish(events.Event{
			Kind:    events.KindFilesChanged,
			NodeID:  nodeID,
			Payload: events.FilesChangedPayload{Paths: paths},
		})
	}

	for {
		select {
		case <-nw.done:
			return

		case event, ok := <-nw.fsw.Events:
			if !ok {
				return
			}
			if shouldIgnore(event.Name) {
				continue
			}

			// New directories need their own watch to stay recursive.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := nw.fsw.Add(event.Name); err != nil {
						slog.Warn("failed to watch new directory",
							"node_id", nodeID, "path", event.Name, "error", err)
					}
				}
			}

			rel, err := filepath.Rel(worktreePath, event.Name)
			if err != nil {
				continue
			}
			pending[rel] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(m.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.debounce)
			}

		case <-timerC:
			flush()

		case err, ok := <-nw.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("watch error", "node_id", nodeID, "error", err)
		}
	}
}

// Stop ends the watch for a node. Unknown nodes are a no-op.
func (m *Manager) Stop(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nw, ok := m.watchers[nodeID]; ok {
		nw.close()
		delete(m.watchers, nodeID)
		slog.Info("stopped watching worktree", "node_id", nodeID)
	}
}

// StopAll ends every watch.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for nodeID, nw := range m.watchers {
		nw.close()
		delete(m.watchers, nodeID)
	}
}

// IsWatching reports whether a node has an active watch.
func (m *Manager) IsWatching(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[nodeID]
	return ok
}

func (nw *nodeWatcher) close() {
	close(nw.done)
	nw.fsw.Close()
}
