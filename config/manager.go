package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	apperrors "github.com/leosat/MMVJ/errors"
)

// DebounceWindow coalesces file-change bursts from editors and atomic
// renames into one reload.
const DebounceWindow = 250 * time.Millisecond

// Revision is one immutable, validated configuration generation. The
// dispatcher holds the active revision; the manager publishes replacements.
type Revision struct {
	ID       string
	Config   *Config
	Resolved *Resolved
	LoadedAt time.Time
}

// Manager owns the configuration lifecycle: initial load, file watching
// with debounce, validation, and publication of new revisions to
// subscribers. A reload that fails to parse or validate is logged and the
// prior revision stays active.
type Manager struct {
	path           string
	predefinesPath string
	logger         *slog.Logger

	mu          sync.RWMutex
	current     *Revision
	subscribers []chan *Revision
	override    func(*Config)

	watcher    *fsnotify.Watcher
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	started    atomic.Bool
	stopped    atomic.Bool
}

// NewManager creates a manager for the document at path. predefinesPath is
// optional; empty disables predefines.
func NewManager(path, predefinesPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:           path,
		predefinesPath: predefinesPath,
		logger:         logger.With("component", "config-manager"),
		shutdownCh:     make(chan struct{}),
	}
}

// SetOverride installs a function applied to every loaded document before
// validation. Command-line overrides use it so they survive hot-reloads.
// Must be called before the first Load.
func (m *Manager) SetOverride(fn func(*Config)) {
	m.override = fn
}

// Load reads, validates, and publishes the configuration. The first call
// establishes the initial revision; later calls are reloads.
func (m *Manager) Load() (*Revision, error) {
	cfg, err := LoadFile(m.path)
	if err != nil {
		return nil, err
	}
	if m.predefinesPath != "" {
		pre, err := LoadPredefines(m.predefinesPath)
		if err != nil {
			return nil, err
		}
		cfg.ResolvePredefines(pre)
	}
	if m.override != nil {
		m.override(cfg)
	}
	resolved, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	rev := &Revision{
		ID:       uuid.NewString(),
		Config:   cfg,
		Resolved: resolved,
		LoadedAt: time.Now(),
	}

	m.mu.Lock()
	m.current = rev
	subs := make([]chan *Revision, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	m.logger.Info("Configuration loaded",
		"revision", rev.ID,
		"mappings", len(resolved.Mappings),
		"inputs", len(resolved.Inputs),
		"outputs", len(resolved.Outputs))

	for _, ch := range subs {
		select {
		case ch <- rev:
		default:
			m.logger.Warn("Subscriber channel full, dropping revision notification", "revision", rev.ID)
		}
	}
	return rev, nil
}

// Current returns the active revision, or nil before the first Load.
func (m *Manager) Current() *Revision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers for revision notifications. The channel is buffered;
// a slow subscriber misses intermediate revisions, never blocks the
// manager.
func (m *Manager) Subscribe() <-chan *Revision {
	ch := make(chan *Revision, 4)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Start begins watching the configuration file for changes. Reload
// failures keep the prior revision active.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return apperrors.ErrAlreadyStarted
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.WrapTransient(err, "config-manager", "Start", "create file watcher")
	}
	m.watcher = watcher

	// Watch directories, not files: editors and atomic writes replace the
	// file inode, which silences a direct file watch.
	dirs := map[string]struct{}{filepath.Dir(m.path): {}}
	if m.predefinesPath != "" {
		dirs[filepath.Dir(m.predefinesPath)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return apperrors.WrapTransient(err, "config-manager", "Start", "watch "+dir)
		}
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	m.logger.Info("Watching configuration", "path", m.path)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()

	var debounce *time.Timer
	var fire <-chan time.Time

	watched := map[string]struct{}{filepath.Clean(m.path): {}}
	if m.predefinesPath != "" {
		watched[filepath.Clean(m.predefinesPath)] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if _, relevant := watched[filepath.Clean(ev.Name)]; !relevant {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(DebounceWindow)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(DebounceWindow)
			}
		case <-fire:
			debounce = nil
			fire = nil
			if _, err := m.Load(); err != nil {
				m.logger.Error("Reload failed, keeping previous configuration",
					"error", err,
					"code", apperrors.CodeOf(err))
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("File watcher error", "error", err)
		}
	}
}

// Stop halts watching and waits for the watch loop, up to timeout.
func (m *Manager) Stop(timeout time.Duration) error {
	if !m.started.Load() {
		return apperrors.ErrNotStarted
	}
	if !m.stopped.CompareAndSwap(false, true) {
		return apperrors.ErrAlreadyStopped
	}

	close(m.shutdownCh)
	if m.watcher != nil {
		m.watcher.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Configuration manager stopped")
		return nil
	case <-time.After(timeout):
		return apperrors.Wrap(apperrors.ErrShuttingDown, "config-manager", "Stop", "wait for watch loop")
	}
}
