package content

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of fsnotify events an editor save
// or git checkout produces into one resync.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the content tree and invokes onChange after edits
// settle. It watches every directory under the root (fsnotify is not
// recursive) and picks up directories created later.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func()
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given content root. onChange runs
// on the watcher goroutine; keep it cheap (typically it just signals the
// sync worker).
func NewWatcher(root string, onChange func()) *Watcher {
	return &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		onChange: onChange,
	}
}

// Start begins watching. It blocks only for the initial directory scan;
// the event loop runs on its own goroutine until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	log.Printf("[ContentWatch] Watching %s (debounce=%s)", w.root, w.debounce)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			log.Println("[ContentWatch] Stopping")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			// New directories need their own watch before their files
			// produce events.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						log.Printf("[ContentWatch] Warning: cannot watch new directory %s: %v", event.Name, err)
					}
				}
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.onChange)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[ContentWatch] Error: %v", err)
		}
	}
}

// relevant filters out editor scratch files and events on paths the
// loader would never read.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || strings.HasSuffix(name, "~") {
		return false
	}
	if strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".md" || ext == ".mdx" || ext == ".yaml" || ext == ".yml" {
		return true
	}
	// Directory events carry no extension; let them through so new
	// collection folders get picked up.
	return ext == ""
}
