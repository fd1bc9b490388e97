// watcher.go triggers a flush whenever new payloads land in a store directory.

package flush

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Flusher is what a Watcher triggers. *Controller satisfies it.
type Flusher interface {
	FlushAsync()
}

// Watcher flushes a directory when payload files appear in it. Bursts of
// writes within the debounce window cause a single flush.
type Watcher struct {
	dir      string
	flusher  Flusher
	debounce time.Duration
}

// NewWatcher creates a watcher over dir. A debounce of zero uses 250ms.
func NewWatcher(dir string, flusher Flusher, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{dir: dir, flusher: flusher, debounce: debounce}
}

// Run watches until ctx is cancelled. Watcher errors are non-fatal.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic writes surface as Create (or Rename into place).
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isPayloadFile(event.Name) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flusher.FlushAsync()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func isPayloadFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
