package artifact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowforge/orchestrator/pkg/events"
)

// Watcher folds out-of-band edits to a project's working tree (an editor
// saving a file outside the API) into the same files_changed event the
// Store emits for its own writes, debounced so a burst of saves coalesces
// into one frame. Grounded on the teacher corpus's fsnotify watcher shape
// (kadirpekel-hector's rag.FileWatcher): recursive Add at startup, new
// directories added as Create events arrive, debounce timer coalescing.
type Watcher struct {
	fsw           *fsnotify.Watcher
	root          string
	chatID        string
	bus           *events.Bus
	log           *slog.Logger
	debounceDelay time.Duration
}

// NewWatcher creates (but does not start) a Watcher over root, publishing
// files_changed for chatID.
func NewWatcher(root, chatID string, bus *events.Bus, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:           fsw,
		root:          root,
		chatID:        chatID,
		bus:           bus,
		log:           log,
		debounceDelay: 150 * time.Millisecond,
	}, nil
}

// Start recursively adds root to the watch list and begins processing
// events in a background goroutine. It returns once the initial directory
// walk is registered; stop watching via ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() != filepath.Base(root) && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				w.log.Warn("artifact: watch add failed", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.fsw.Close()

	var mu sync.Mutex
	pending := map[string]struct{}{}
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]struct{}{}
		mu.Unlock()
		if len(paths) == 0 {
			return
		}
		w.bus.PublishFilesChanged(events.FilesChangedPayload{ChatID: w.chatID, Paths: paths})
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			flush()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.log.Warn("artifact: watch add new dir failed", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				rel = ev.Name
			}
			mu.Lock()
			pending[rel] = struct{}{}
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceDelay, flush)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("artifact: watcher error", "root", w.root, "error", err)
		}
	}
}
