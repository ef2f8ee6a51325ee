package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	goyaml "github.com/goccy/go-yaml"

	"github.com/scriptyard/scriptyard/internal/logger"
)

// Watcher watches an on-disk YAML config file and re-decodes it on change,
// grounded on the teacher pack's own fsnotify.Watcher lifecycle (Add in
// Start, drain events in a goroutine, Close in Stop). Unlike Load, which
// runs once at process startup through viper, Watcher re-parses the file
// directly with goccy/go-yaml so a single changed key doesn't require
// rebuilding the whole viper instance.
type Watcher struct {
	path   string
	log    logger.Logger
	onLoad func(overlay map[string]any)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a Watcher for the YAML file at path. onLoad is called
// with the freshly-decoded top-level keys every time the file changes;
// callers typically merge these over the Config already produced by Load.
func NewWatcher(path string, log logger.Logger, onLoad func(overlay map[string]any)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    path,
		log:     log,
		onLoad:  onLoad,
		watcher: fw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching the config file. Non-blocking.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	go w.run()
	return nil
}

// Stop stops watching and releases the underlying inotify/kqueue handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("config watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		if w.log != nil {
			w.log.Warn("config watcher: read failed", "path", w.path, "error", err)
		}
		return
	}
	var overlay map[string]any
	if err := goyaml.Unmarshal(data, &overlay); err != nil {
		if w.log != nil {
			w.log.Warn("config watcher: decode failed", "path", w.path, "error", err)
		}
		return
	}
	if w.log != nil {
		w.log.Info("config file changed, reloaded", "path", w.path)
	}
	if w.onLoad != nil {
		w.onLoad(overlay)
	}
}
