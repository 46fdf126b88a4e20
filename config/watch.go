package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for further writes before reloading.
const DefaultDebounce = 250 * time.Millisecond

// ErrNothingToWatch is returned by Watch when no config file exists.
var ErrNothingToWatch = errors.New("no config file to watch")

// Watcher reloads configuration when its file changes.
type Watcher struct {
	loader   *Loader
	explicit string
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	apply    func(*Config)
	done     chan struct{}
}

// Watch watches the most specific config file (the explicit path if set,
// else the project file, else the user file) and calls apply with the
// fully layered config after each change. A reload that fails validation is
// logged and skipped. Watching stops when ctx is cancelled or Close is called.
func (l *Loader) Watch(ctx context.Context, explicit string, apply func(*Config)) (*Watcher, error) {
	path := explicit
	if path == "" {
		path = l.findProjectConfig()
	}
	if path == "" {
		if p := l.userConfigPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path == "" {
		return nil, ErrNothingToWatch
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace files by rename, so watch the directory.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		loader:   l,
		explicit: explicit,
		path:     abs,
		fsw:      fsw,
		debounce: l.debounce,
		apply:    apply,
		done:     make(chan struct{}),
	}
	go w.run(ctx)

	l.logger.Info("Watching config file", slog.String("path", abs))
	return w, nil
}

// Path returns the file being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.loader.logger.Warn("Config watcher error", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.explicit)
	if err != nil {
		w.loader.logger.Warn("Config reload failed, keeping previous settings",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.loader.logger.Info("Config reloaded", slog.String("path", w.path))
	if w.apply != nil {
		w.apply(cfg)
	}
}
