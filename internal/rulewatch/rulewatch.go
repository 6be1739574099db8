// Package rulewatch hot-reloads the rule engine's YAML file on change:
// it watches the file's containing directory with fsnotify, debounces
// rapid Write/Create events with a timer, then triggers the same atomic
// reload path the HTTP endpoint uses.
package rulewatch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events many editors emit for a
// single save (temp-file write + rename + chmod).
const DefaultDebounce = 300 * time.Millisecond

// Reloader is the subset of rules.Engine this watcher needs.
type Reloader interface {
	Reload() error
}

// Watcher observes a rule file's directory and calls Reloader.Reload
// whenever the file changes, debounced to avoid reloading mid-write.
type Watcher struct {
	path     string
	reloader Reloader
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Watcher at construction.
type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// New constructs a Watcher for path, calling reloader.Reload on change.
func New(path string, reloader Reloader, log zerolog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		path:     path,
		reloader: reloader,
		debounce: DefaultDebounce,
		log:      log.With().Str("component", "rulewatch").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the rule file's directory. It returns once the
// fsnotify watcher is registered; events are processed on a background
// goroutine until stop is closed or Stop is called.
func (w *Watcher) Start(stop <-chan struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	go w.loop(stop)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) loop(stop <-chan struct{}) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()

		if err := w.reloader.Reload(); err != nil {
			w.log.Error().Err(err).Str("path", w.path).Msg("rule reload failed")
			return
		}
		w.log.Info().Str("path", w.path).Msg("rules reloaded from file change")
	})
}
