package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// DefaultQueueSize bounds the raw event hand-off between the backend and the filter.
const DefaultQueueSize = 1024

// Source watches a set of roots recursively and publishes RawEvents.
type Source struct {
	watcher *fsnotify.Watcher
	events  chan RawEvent
	logger  *slog.Logger
}

// NewSource creates a watcher covering every directory below each root.
// Relative roots are resolved against cwd.
func NewSource(roots []WatchedPath, cwd string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	s := &Source{
		watcher: w,
		events:  make(chan RawEvent, DefaultQueueSize),
		logger:  logger,
	}
	for _, r := range roots {
		root := r.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
		if err := s.addRecursive(root); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watching %s: %w", root, err)
		}
		logger.Debug("watching path", slog.String("path", root))
	}
	return s, nil
}

// Events returns the raw event stream. It is closed when Run returns.
func (s *Source) Events() <-chan RawEvent { return s.events }

// Run pumps backend notifications until ctx is done or the backend closes.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.events)
	defer s.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			// new directories need their own watch
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := s.addRecursive(ev.Name); err != nil {
						s.logger.Warn("watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
					}
				}
			}
			select {
			case s.events <- Translate(ev):
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Translate maps an fsnotify event onto a RawEvent. fsnotify reports renames
// with the old name only; the new name arrives as a separate Create.
func Translate(ev fsnotify.Event) RawEvent {
	kind := KindOther
	switch {
	case ev.Has(fsnotify.Create):
		kind = KindCreate
	case ev.Has(fsnotify.Write):
		kind = KindModify
	case ev.Has(fsnotify.Remove):
		kind = KindRemove
	case ev.Has(fsnotify.Rename):
		kind = KindRename
	case ev.Has(fsnotify.Chmod):
		kind = KindMetadata
	case ev.Op == 0:
		kind = KindAny
	}
	return RawEvent{Kind: kind, Paths: []string{ev.Name}}
}

func (s *Source) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == root {
			return s.watcher.Add(path)
		}
		return nil
	})
}
