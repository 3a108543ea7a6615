// Package filewatcher reports changes to configuration files.
package filewatcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// FileWatcher calls back once per burst of writes to a watched file.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dirs     []string
	files    map[string]bool
	scanDirs map[string]bool
	patterns []string
	debounce time.Duration
	logger   *slog.Logger

	callbacksMu sync.RWMutex
	callbacks   []func(string)

	changesMu sync.Mutex
	changes   map[string]time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a FileWatcher. Nothing is watched until Start.
func New(opts ...Option) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FileWatcher{
		watcher:  watcher,
		files:    make(map[string]bool),
		scanDirs: make(map[string]bool),
		patterns: []string{"*"},
		debounce: defaultDebounce,
		logger:   slog.Default(),
		changes:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	if len(fw.dirs) == 0 {
		_ = watcher.Close()
		return nil, errors.New("filewatcher: nothing to watch")
	}
	return fw, nil
}

func (fw *FileWatcher) addDir(dir string) {
	for _, d := range fw.dirs {
		if d == dir {
			return
		}
	}
	fw.dirs = append(fw.dirs, dir)
}

// AddCallback adds a callback to be called with the path of a changed file.
func (fw *FileWatcher) AddCallback(callback func(string)) {
	fw.callbacksMu.Lock()
	defer fw.callbacksMu.Unlock()
	fw.callbacks = append(fw.callbacks, callback)
}

// Start begins watching. The watcher stops when ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	for _, dir := range fw.dirs {
		fw.logger.Debug("Watching directory", "dir", dir)
		if err := fw.watcher.Add(dir); err != nil {
			return err
		}
	}
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(fw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = fw.Stop()
			return
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if fw.matches(event.Name) {
				fw.changesMu.Lock()
				fw.changes[event.Name] = time.Now()
				fw.changesMu.Unlock()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
		case <-ticker.C:
			fw.flush()
		}
	}
}

// flush runs callbacks for files that have been quiet for the debounce period.
func (fw *FileWatcher) flush() {
	now := time.Now()
	var ready []string
	fw.changesMu.Lock()
	for file, at := range fw.changes {
		if now.Sub(at) >= fw.debounce {
			ready = append(ready, file)
			delete(fw.changes, file)
		}
	}
	fw.changesMu.Unlock()

	if len(ready) == 0 {
		return
	}
	fw.callbacksMu.RLock()
	defer fw.callbacksMu.RUnlock()
	for _, file := range ready {
		fw.logger.Info("File changed", "file", file)
		for _, callback := range fw.callbacks {
			callback(file)
		}
	}
}

func (fw *FileWatcher) matches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		abs = filepath.Clean(name)
	}
	if fw.files[abs] {
		return true
	}
	if !fw.scanDirs[filepath.Dir(abs)] {
		return false
	}
	base := filepath.Base(name)
	for _, pattern := range fw.patterns {
		matched, err := filepath.Match(pattern, base)
		if err != nil {
			fw.logger.Error("Pattern match error", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
