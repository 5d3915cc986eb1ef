package fs

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zero8dotdev/godspeed-cli/log"
)

// WatcherConfig configures a recursive tree watcher
type WatcherConfig struct {
	// Root is the directory watched recursively.
	Root string

	// Filter decides which entries are never watched. Defaults to ExcludeForWatch.
	Filter *PathFilter

	// Match reports whether a changed file (slash path relative to Root) is
	// relevant. Nil matches everything.
	Match func(relPath string) bool

	// Delay is the quiet period before a batch is flushed.
	Delay time.Duration

	// OnChange receives each debounced batch of relevant changes.
	OnChange func(batch []Change)
}

// Watcher watches a directory tree using fsnotify and reports debounced
// batches of changes. Directories created after Start are picked up.
type Watcher struct {
	cfg       WatcherConfig
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	stopped   bool
}

// NewWatcher creates a watcher; call Start to begin watching
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Filter == nil {
		cfg.Filter = NewPathFilter(ExcludeForWatch)
	}
	w := &Watcher{
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
	w.debouncer = newDebouncer(cfg.Delay, w.flush)
	return w
}

// Start begins watching the filesystem
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWatcherClosed
	}

	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := w.watchRecursive(w.cfg.Root); err != nil {
		w.watcher.Close()
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()

	log.Debug().Str("root", w.cfg.Root).Msg("filesystem watcher started")
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
// Pending changes are discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	// Stop debouncer before closing stopChan to prevent race
	// where events try to queue after debouncer is stopped
	w.debouncer.Stop()
	close(w.stopChan)

	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) flush(batch []Change) {
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(batch)
	}
}

// watchRecursive adds all directories under root to the watcher
func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip errors
		}

		if !info.IsDir() {
			return nil
		}

		if path != root && w.cfg.Filter.IsExcludedName(info.Name()) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}

// eventLoop processes filesystem events
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// handleEvent processes a single filesystem event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil {
		return
	}
	if w.cfg.Filter.IsExcluded(relPath) {
		return
	}
	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(event.Name)
	if err != nil {
		// Handle both Remove AND Rename - both mean "file gone from this path"
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.matches(relPath) {
			w.debouncer.Queue(relPath, EventDelete)
		}
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			// Files may land in the new directory before it is watched.
			if err := w.watchRecursive(event.Name); err != nil {
				log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
		}
		return
	}

	if !w.matches(relPath) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		w.debouncer.Queue(relPath, EventCreate)
	case event.Op&fsnotify.Write != 0:
		w.debouncer.Queue(relPath, EventWrite)
	}
}

func (w *Watcher) matches(relPath string) bool {
	return w.cfg.Match == nil || w.cfg.Match(relPath)
}
