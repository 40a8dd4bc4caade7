package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// exportSettle is how long a JSON export must stay unchanged before it is
// indexed, so files still being written are not read half way.
const exportSettle = 750 * time.Millisecond

// ExportWatcher re-indexes JSON exports dropped into an export directory.
// It watches the directory itself and each of its subdirectories.
type ExportWatcher struct {
	indexer *Indexer
	watcher *fsnotify.Watcher
	settle  time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewExportWatcher(indexer *Indexer, logger *zap.Logger) (*ExportWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create export watcher: %w", err)
	}
	return &ExportWatcher{
		indexer: indexer,
		watcher: w,
		settle:  exportSettle,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Watch blocks until ctx is cancelled, indexing exports as they appear.
func (w *ExportWatcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read export directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.addDir(filepath.Join(dir, entry.Name()))
		}
	}
	w.logger.Info("Watching export directory", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Export watcher error", zap.Error(err))
		}
	}
}

// Close stops the underlying watcher.
func (w *ExportWatcher) Close() error {
	w.stopPending()
	return w.watcher.Close()
}

func (w *ExportWatcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addDir(event.Name)
			return
		}
	}
	if filepath.Ext(event.Name) != ".json" {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.schedule(ctx, event.Name)
}

func (w *ExportWatcher) addDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("Failed to watch export subdirectory", zap.String("dir", dir), zap.Error(err))
	}
}

// schedule (re)starts the settle timer for path.
func (w *ExportWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		result, err := w.indexer.indexFile(ctx, path)
		if err != nil {
			w.logger.Error("Failed to index export", zap.String("file", path), zap.Error(err))
			return
		}
		w.logger.Info("Indexed export",
			zap.String("file", path),
			zap.String("document_id", result.DocumentID),
			zap.Int("chunks", result.Chunks))
	})
}

func (w *ExportWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
