package layout

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a layout file when it changes on disk. Invalid edits are
// reported on Errors and leave the last good layout in place.
type Watcher struct {
	path     string
	delay    time.Duration
	onChange func(*Layout)
	errChan  chan error

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for path. onChange is called from the
// watcher goroutine with every successfully reloaded layout.
func NewWatcher(path string, onChange func(*Layout)) *Watcher {
	return &Watcher{
		path:     path,
		delay:    100 * time.Millisecond,
		onChange: onChange,
		errChan:  make(chan error, 1),
	}
}

// Start begins watching the directory that holds the layout file.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.watcher = fw
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(w.delay)

		case <-timer.C:
			l, err := Load(w.path)
			if err != nil {
				w.report(fmt.Errorf("reload layout: %w", err))
				continue
			}
			if w.onChange != nil {
				w.onChange(l)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errChan <- err:
	default:
	}
}

// Errors returns reload and watch errors. Errors are dropped while the
// channel is full.
func (w *Watcher) Errors() <-chan error {
	return w.errChan
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
