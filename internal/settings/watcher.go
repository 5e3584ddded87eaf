package settings

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cattern/rovercam/internal/logging"
)

// debounceWindow coalesces the burst of events an editor or atomic
// rename produces into one reload.
const debounceWindow = 100 * time.Millisecond

// Watcher reloads the store when the settings file changes on disk, so
// manual edits take effect without a restart.
type Watcher struct {
	store    *Store
	onChange func(Values)
	logger   logging.Logger
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher starts watching the store's file. onChange may be nil.
func NewWatcher(store *Store, onChange func(Values)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: atomic saves replace the inode
	// and a file watch would go stale after the first rename.
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    store,
		onChange: onChange,
		logger:   logging.GetLogger("settings"),
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	target := filepath.Clean(w.store.Path())

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.store.Reload(); err != nil {
				w.logger.Error("Failed to reload settings", "error", err)
				continue
			}
			w.logger.Info("Settings reloaded", "path", w.store.Path())
			if w.onChange != nil {
				w.onChange(w.store.Get())
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Settings watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
