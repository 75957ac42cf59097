// Package watch records changes to configuration files on disk as system
// configuration revisions.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/ingest"
	"github.com/pders01/confhist/internal/models"
)

// DefaultDebounce coalesces the burst of write events an editor produces
const DefaultDebounce = 500 * time.Millisecond

// Notifier receives observed changes
type Notifier interface {
	NotifyChange(ctx context.Context, entity models.Entity, op models.Operation, user models.User, content []byte) (models.Revision, error)
}

// History answers whether a file already has recorded revisions
type History interface {
	Latest(ctx context.Context, entity models.Entity) (models.Revision, bool, error)
}

// Options configures a Watcher
type Options struct {
	// Patterns are filepath.Match globs on the file base name. Empty matches
	// every file.
	Patterns []string
	Debounce time.Duration
	User     models.User
}

// Watcher maps file system events in a set of directories to revisions
type Watcher struct {
	dirs     []string
	notifier Notifier
	history  History
	opts     Options
	logger   *zap.Logger

	// Recorded is called after each successful record; used by callers
	// that report progress
	Recorded func(models.Revision)
}

func New(dirs []string, notifier Notifier, history History, opts Options, logger *zap.Logger) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	for _, p := range opts.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dirs: dirs, notifier: notifier, history: history, opts: opts, logger: logger}, nil
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.Info("Watching directory", zap.String("dir", dir))
	}

	ready := make(chan string)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watcher")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.matches(event.Name) {
				continue
			}
			w.logger.Debug("File event", zap.String("file", event.Name), zap.String("op", event.Op.String()))

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				path := event.Name
				if t, ok := pending[path]; ok {
					t.Stop()
				}
				pending[path] = time.AfterFunc(w.opts.Debounce, func() {
					select {
					case ready <- path:
					case <-ctx.Done():
					}
				})
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if t, ok := pending[event.Name]; ok {
					t.Stop()
					delete(pending, event.Name)
				}
				w.removed(ctx, event.Name)
			}

		case path := <-ready:
			delete(pending, path)
			w.changed(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if len(w.opts.Patterns) == 0 {
		return true
	}
	for _, p := range w.opts.Patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) changed(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("Failed to read changed file", zap.String("file", path), zap.Error(err))
		}
		return
	}

	entity := models.SystemConfig(filepath.Base(path))
	op := models.OpChanged
	latest, ok, err := w.history.Latest(ctx, entity)
	if err != nil {
		w.logger.Warn("Failed to read history", zap.String("entity", entity.Key()), zap.Error(err))
		return
	}
	if !ok || latest.Operation == models.OpDeleted {
		op = models.OpCreated
	}
	w.notify(ctx, entity, op, content)
}

func (w *Watcher) removed(ctx context.Context, path string) {
	w.notify(ctx, models.SystemConfig(filepath.Base(path)), models.OpDeleted, nil)
}

func (w *Watcher) notify(ctx context.Context, entity models.Entity, op models.Operation, content []byte) {
	rev, err := w.notifier.NotifyChange(ctx, entity, op, w.opts.User, content)
	switch {
	case errors.Is(err, ingest.ErrSkipped):
		w.logger.Debug("Change skipped", zap.String("entity", entity.Key()), zap.Error(err))
	case err != nil:
		w.logger.Error("Failed to record change", zap.String("entity", entity.Key()), zap.Error(err))
	default:
		w.logger.Info("Recorded change",
			zap.String("entity", entity.Key()),
			zap.String("id", rev.Identifier),
			zap.String("operation", string(rev.Operation)),
		)
		if w.Recorded != nil {
			w.Recorded(rev)
		}
	}
}
