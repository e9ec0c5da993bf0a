package policy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads policy files into a resolver when they change on disk.
// Runs already in flight keep the policy they resolved at start; only later
// runs observe the reloaded registry.
type Watcher struct {
	resolver *Resolver
	dir      string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	stop     chan struct{}
}

// NewWatcher creates a watcher over a policy directory.
func NewWatcher(resolver *Resolver, dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	return &Watcher{
		resolver: resolver,
		dir:      dir,
		logger:   logger,
		watcher:  fw,
		stop:     make(chan struct{}),
	}, nil
}

// Start performs an initial directory load, then watches for changes in a
// background goroutine until Stop is called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.resolver.LoadPolicyDir(w.dir); err != nil {
		// Individual bad files are already registered as warnings; the
		// watcher still starts so fixed files get picked up.
		w.logger.Warn("initial policy load reported errors", zap.Error(err))
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching policy directory: %w", err)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isPolicyFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if _, err := w.resolver.LoadPolicyFile(event.Name); err != nil {
					w.logger.Warn("policy reload failed",
						zap.String("path", event.Name),
						zap.Error(err))
					continue
				}
				w.logger.Info("policy reloaded", zap.String("path", event.Name))
			}
			// Removed files stay registered: runs that resolved the policy
			// must keep it, and re-creation will refresh the entry.
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}
