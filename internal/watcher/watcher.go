// Package watcher delivers raw filesystem events for a watched tree.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/fsnotify/fsnotify"

	"drivesync/internal/sync"
)

// FSWatcher implements the sync Watcher interface on top of fsnotify.
// fsnotify watches are per-directory and non-recursive, so the watcher
// registers every subdirectory at Start and adds new directories as they
// appear. A watcher is single-use: after Stop it cannot be restarted.
type FSWatcher struct {
	fsWatcher *fsnotify.Watcher
	root      string

	events chan sync.WatchEvent
	errors chan error

	done chan struct{}
	wg   gosync.WaitGroup
}

// New creates an unstarted watcher.
func New() (*FSWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &FSWatcher{
		fsWatcher: fsWatcher,
		events:    make(chan sync.WatchEvent, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching root and all of its subdirectories.
func (w *FSWatcher) Start(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop gracefully shuts down the watcher and closes the event channels.
func (w *FSWatcher) Stop() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of raw filesystem events.
func (w *FSWatcher) Events() <-chan sync.WatchEvent {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// addRecursive registers the directory and every subdirectory under it.
func (w *FSWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// eventLoop converts fsnotify events into watch events until Stop.
func (w *FSWatcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handleEvent translates one fsnotify event. New directories are added to
// the watch set; a rename-away is surfaced as a remove since fsnotify
// reports the destination as a separate create.
func (w *FSWatcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				select {
				case w.errors <- err:
				default:
				}
			}
		}
		w.emit(event.Name, sync.WatchCreate)

	case event.Op&fsnotify.Write != 0:
		w.emit(event.Name, sync.WatchWrite)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.emit(event.Name, sync.WatchRemove)

		// Chmod-only events carry no content change and are dropped.
	}
}

func (w *FSWatcher) emit(path string, op sync.WatchOp) {
	select {
	case w.events <- sync.WatchEvent{Path: path, Op: op}:
	case <-w.done:
	}
}

// Compile-time check that FSWatcher implements the sync Watcher interface
var _ sync.Watcher = (*FSWatcher)(nil)
