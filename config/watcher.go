// 文件变更监听器实现。
//
// 以轮询方式检测文件的创建、修改与删除，并在防抖后触发回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileOp is the kind of change observed on a watched file.
type FileOp int

const (
	// FileOpCreate 文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 文件已修改
	FileOpWrite
	// FileOpRemove 文件已删除
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrWatcherRunning is returned by Start on a running watcher.
var ErrWatcherRunning = errors.New("watcher already running")

// FileWatcher polls files for changes. Events on the same path inside the
// debounce delay collapse into the last one.
type FileWatcher struct {
	mu sync.Mutex

	paths         []string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running  bool
	stop     chan struct{}
	modTimes map[string]time.Time
	pending  map[string]FileEvent
	debounce *time.Timer

	callbacks []func(FileEvent)
	logger    *zap.Logger
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher creates a watcher over paths. Missing files are watched for
// creation.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		modTimes:      make(map[string]time.Time),
		pending:       make(map[string]FileEvent),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "file_watcher"))

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
			}
			w.logger.Warn("watched file does not exist, waiting for creation", zap.String("path", abs))
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// OnChange registers a callback. Callbacks run sequentially on the watcher's
// debounce goroutine.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins polling until ctx is done or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrWatcherRunning
	}
	w.running = true
	w.stop = make(chan struct{})

	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.modTimes[path] = info.ModTime()
		}
	}

	go w.pollLoop(ctx, w.stop)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval),
	)
	return nil
}

// Stop stops polling. Pending debounced events are dropped.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stop)
	w.running = false
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.pending = make(map[string]FileEvent)
	w.logger.Info("file watcher stopped")
}

// IsRunning reports whether the watcher is polling.
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Paths returns the absolute watched paths.
func (w *FileWatcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

func (w *FileWatcher) pollLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

func (w *FileWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	now := time.Now()
	for _, path := range w.paths {
		info, err := os.Stat(path)
		last, tracked := w.modTimes[path]
		switch {
		case err != nil:
			if os.IsNotExist(err) && tracked {
				delete(w.modTimes, path)
				w.queueLocked(FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
			}
		case !tracked:
			w.modTimes[path] = info.ModTime()
			w.queueLocked(FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case info.ModTime().After(last):
			w.modTimes[path] = info.ModTime()
			w.queueLocked(FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
}

// queueLocked records ev and restarts the debounce timer.
func (w *FileWatcher) queueLocked(ev FileEvent) {
	w.pending[ev.Path] = ev
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceDelay, w.flush)
}

func (w *FileWatcher) flush() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	events := make([]FileEvent, 0, len(w.pending))
	for _, ev := range w.pending {
		events = append(events, ev)
	}
	w.pending = make(map[string]FileEvent)
	callbacks := append(([]func(FileEvent))(nil), w.callbacks...)
	w.mu.Unlock()

	for _, ev := range events {
		w.logger.Debug("dispatching file event",
			zap.String("path", ev.Path),
			zap.String("op", ev.Op.String()),
		)
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}
