// Package watcher provides tenant inbox watching with fsnotify and debouncing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// InboxWatcher watches an inbox directory laid out as <inbox>/<tenant>/<file>
// and calls onFile once a dropped file has settled. The first path element
// under the inbox names the owning tenant; files at the inbox root have no
// tenant and are ignored.
type InboxWatcher struct {
	inboxDir    string
	extensions  []string
	onFile      func(tenantID, path string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures an InboxWatcher.
type Option func(*InboxWatcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *InboxWatcher) { w.logger = l }
}

// WithDebounce overrides the settle delay before a file is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *InboxWatcher) { w.debounce = d }
}

// NewInboxWatcher creates a watcher over inboxDir. extensions filters which
// files are reported (empty = all); onFile receives the tenant and the path.
func NewInboxWatcher(inboxDir string, extensions []string, onFile func(tenantID, path string), opts ...Option) *InboxWatcher {
	w := &InboxWatcher{
		inboxDir:    inboxDir,
		extensions:  extensions,
		onFile:      onFile,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches the inbox and all existing tenant directories, then runs
// until ctx is cancelled or Stop is called. Tenant directories created later
// are picked up automatically.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true

	if err := watcher.Add(w.inboxDir); err != nil {
		_ = watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	entries, err := os.ReadDir(w.inboxDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = watcher.Add(filepath.Join(w.inboxDir, e.Name()))
			}
		}
	}
	if w.logger != nil {
		w.logger.Debug("inbox watcher starting", zap.String("inbox", w.inboxDir))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *InboxWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (w *InboxWatcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	path := ev.Name
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		// A new tenant directory appeared under the inbox root.
		if filepath.Dir(path) == w.inboxDir {
			w.mu.Lock()
			_ = w.watcher.Add(path)
			w.mu.Unlock()
			if w.logger != nil {
				w.logger.Debug("watching tenant inbox", zap.String("path", path))
			}
		}
		return
	}
	tenantID := w.tenantFor(path)
	if tenantID == "" || !w.matchExtension(path) {
		return
	}
	w.debounceFile(tenantID, path)
}

// tenantFor derives the tenant from the first path element under the inbox.
func (w *InboxWatcher) tenantFor(path string) string {
	rel, err := filepath.Rel(w.inboxDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func (w *InboxWatcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// debounceFile delays the callback until writes to the file have settled.
func (w *InboxWatcher) debounceFile(tenantID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounceMap[path]; ok {
		timer.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		if w.logger != nil {
			w.logger.Debug("inbox file settled",
				zap.String("tenant_id", tenantID), zap.String("path", path))
		}
		w.onFile(tenantID, path)
	})
}

// Stop stops the watcher. Safe to call more than once.
func (w *InboxWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for path, timer := range w.debounceMap {
			timer.Stop()
			delete(w.debounceMap, path)
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}
