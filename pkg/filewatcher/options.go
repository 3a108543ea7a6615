package filewatcher

import (
	"log/slog"
	"path/filepath"
	"time"
)

// Option configures a FileWatcher
type Option func(*FileWatcher)

// WithLogger sets the logger for the file watcher
func WithLogger(logger *slog.Logger) Option {
	return func(fw *FileWatcher) {
		if logger != nil {
			fw.logger = logger
		}
	}
}

// WithFiles watches individual files. Their parent directories are watched
// so that editors which replace the file on save are still noticed.
func WithFiles(files ...string) Option {
	return func(fw *FileWatcher) {
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				abs = filepath.Clean(f)
			}
			fw.files[abs] = true
			fw.addDir(filepath.Dir(abs))
		}
	}
}

// WithDirs watches whole directories, filtered by WithPatterns.
func WithDirs(dirs ...string) Option {
	return func(fw *FileWatcher) {
		for _, d := range dirs {
			abs, err := filepath.Abs(d)
			if err != nil {
				abs = filepath.Clean(d)
			}
			fw.scanDirs[abs] = true
			fw.addDir(abs)
		}
	}
}

// WithPatterns sets the base-name patterns matched inside watched directories.
func WithPatterns(patterns ...string) Option {
	return func(fw *FileWatcher) {
		if len(patterns) > 0 {
			fw.patterns = patterns
		}
	}
}

// WithDebounce sets how long a file must stay quiet before callbacks run.
func WithDebounce(d time.Duration) Option {
	return func(fw *FileWatcher) {
		if d > 0 {
			fw.debounce = d
		}
	}
}
