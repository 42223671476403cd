// Package watch monitors a directory for survey tables dropped into it.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/snufilmfest/ottcluster/internal/logging"
)

// Event reports a table that was created or rewritten and has been quiet
// for the debounce window.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher emits events for files with a watched extension.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	logger     *logging.Logger

	// Ignore skips matching paths (e.g. files the caller writes itself).
	Ignore func(path string) bool
}

// NewWatcher creates a watcher. Extensions default to ".csv".
func NewWatcher(extensions []string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".csv"}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		watcher:    w,
		extensions: extensions,
		debounce:   debounce,
		logger:     logger.Named("watch"),
	}, nil
}

// Watch starts monitoring dir. A burst of writes to one file yields a single
// event once the file has been quiet for the debounce window. The channel is
// closed when ctx is done or the watcher stops.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 100)
	tick := max(w.debounce/2, 10*time.Millisecond)

	go func() {
		defer close(events)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		type pendingEvent struct {
			op   fsnotify.Op
			last time.Time
		}
		pending := make(map[string]pendingEvent)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.wanted(event.Name) {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				p := pending[event.Name]
				p.op |= event.Op & (fsnotify.Create | fsnotify.Write)
				p.last = time.Now()
				pending[event.Name] = p

			case now := <-ticker.C:
				for path, p := range pending {
					if now.Sub(p.last) < w.debounce {
						continue
					}
					delete(pending, path)
					select {
					case events <- Event{Path: path, Op: p.op}:
					case <-ctx.Done():
						return
					}
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn(ctx, "watch error", zap.Error(err))
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) wanted(path string) bool {
	if w.Ignore != nil && w.Ignore(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReportPath is where the report for a watched table is written.
func ReportPath(tablePath string) string {
	return strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + ".report.json"
}
