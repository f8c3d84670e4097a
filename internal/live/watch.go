// Package live watches a drop directory and feeds newly arrived export
// files (chat archives, connections CSVs) to the importers.
package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/anqer/anqer/internal/adapters"
	"github.com/anqer/anqer/internal/sync"
)

// Debounce window: export writers create the file and then append to
// it; import only after it has settled.
const settleDelay = 2 * time.Second

// Watcher imports files dropped into a directory.
type Watcher struct {
	engine *sync.Engine
	dir    string
	logf   func(format string, args ...any)
}

func NewWatcher(engine *sync.Engine, dir string, logf func(format string, args ...any)) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if logf == nil {
		logf = func(format string, args ...any) { fmt.Printf(format+"\n", args...) }
	}
	return &Watcher{engine: engine, dir: dir, logf: logf}, nil
}

// Run blocks, importing drops until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.logf("Watching for exports in %s", w.dir)

	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := event.Name
			if !importable(name) {
				continue
			}
			// Reset the settle timer on each write to the same file.
			if t, ok := pending[name]; ok {
				t.Stop()
			}
			pending[name] = time.AfterFunc(settleDelay, func() {
				w.importFile(ctx, name)
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logf("[%s] Watch error: %v", time.Now().Format("15:04:05"), werr)
		}
	}
}

func importable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip", ".csv":
		return true
	}
	return false
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	var (
		res adapters.SyncResult
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		var adapter *adapters.WhatsAppAdapter
		adapter, err = adapters.NewWhatsAppAdapter(w.engine.Store, w.engine.Resolver, w.engine.Summarizer,
			w.engine.Config.Me.DisplayName, path)
		if err == nil {
			res, err = w.engine.Run(ctx, adapter)
		}
	case ".csv":
		var f *os.File
		f, err = os.Open(path)
		if err == nil {
			defer f.Close()
			var adapter *adapters.LinkedInAdapter
			adapter, err = adapters.NewLinkedInAdapter(w.engine.Store, w.engine.Resolver, f)
			if err == nil {
				res, err = w.engine.Run(ctx, adapter)
			}
		}
	default:
		return
	}

	if err != nil {
		w.logf("[%s] Import failed for %s: %v", time.Now().Format("15:04:05"), filepath.Base(path), err)
		return
	}
	w.logf("[%s] Imported %s: %d interactions, %d persons (skipped %d)",
		time.Now().Format("15:04:05"), filepath.Base(path),
		res.InteractionsCreated, res.PersonsCreated, res.RecordsSkipped)
}
