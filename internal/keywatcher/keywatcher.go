// Package keywatcher notices when the identity key file is replaced so a
// running node can start announcing the new key.
package keywatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"announce/internal/util/logger/sl"
)

const DefaultDebounceDuration = 500 * time.Millisecond

var ErrWatcherClosed = errors.New("watcher is closed")

type Config struct {
	DebounceDuration time.Duration
	Logger           *slog.Logger
}

type KeyWatcher struct {
	watcher   *fsnotify.Watcher
	path      string
	onChange  func(path string)
	debouncer *debouncer
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New watches path for writes and replacements. The directory is watched
// rather than the file because keys are replaced by rename.
func New(path string, onChange func(path string), cfg Config) (*KeyWatcher, error) {
	const op = "keywatcher.New"

	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w := &KeyWatcher{
		watcher:  watcher,
		path:     abs,
		onChange: onChange,
		log:      cfg.Logger.With(slog.String("op", op), slog.String("path", abs)),
	}
	w.debouncer = newDebouncer(cfg.DebounceDuration, func() {
		w.onChange(w.path)
	})
	return w, nil
}

// Run handles events until ctx is done or the watcher is closed.
func (w *KeyWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.debouncer.stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.debouncer.stop()
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.debouncer.stop()
				return nil
			}
			w.log.Error("Watcher error", sl.Err(err))
		}
	}
}

func (w *KeyWatcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.log.Debug("Key file event", slog.String("event", event.Op.String()))
	w.debouncer.trigger()
}

func (w *KeyWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	w.debouncer.stop()
	return w.watcher.Close()
}
