package group

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yuyake44/munge/internal/defs"
	"github.com/yuyake44/munge/internal/log"
)

// Manager owns the current group Snapshot and keeps it refreshed,
// watching the group file's directory for changes via fsnotify and
// falling back to a periodic re-parse if the watch can't be
// established — a container or chroot without inotify, for instance.
type Manager struct {
	passwdPath string
	groupPath  string

	current atomic.Pointer[Snapshot]
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewManager builds a Manager that tracks the given passwd/group files.
// It performs one synchronous parse before returning so Snapshot() is
// immediately usable.
func NewManager(passwdPath, groupPath string) (*Manager, error) {
	m := &Manager{
		passwdPath: passwdPath,
		groupPath:  groupPath,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Snapshot returns the current group Snapshot. The returned value is
// immutable and safe to use without further locking.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

func (m *Manager) reload() error {
	snap, err := parseSnapshot(m.passwdPath, m.groupPath)
	if err != nil {
		return err
	}
	m.current.Store(snap)
	return nil
}

// Run watches for group-file changes and periodic re-parse until
// Stop is called. It never returns until stopped.
func (m *Manager) Run() {
	defer close(m.done)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("group watch unavailable, falling back to polling", log.Err(err))
		m.pollLoop()
		return
	}
	m.watcher = watcher
	defer watcher.Close()

	if err := watcher.Add(dirOf(m.groupPath)); err != nil {
		log.Warn("group watch add failed, falling back to polling", log.Err(err))
		m.pollLoop()
		return
	}

	ticker := time.NewTicker(defs.GroupParseTimer)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name == m.groupPath && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				if err := m.reload(); err != nil {
					log.Warn("group reload failed", log.Err(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("group watcher error", log.Err(err))
		case <-ticker.C:
			if err := m.reload(); err != nil {
				log.Warn("group reload failed", log.Err(err))
			}
		}
	}
}

func (m *Manager) pollLoop() {
	ticker := time.NewTicker(defs.GroupParseTimer)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.reload(); err != nil {
				log.Warn("group reload failed", log.Err(err))
			}
		}
	}
}

// Stop halts the Run loop and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
