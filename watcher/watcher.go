// Package watcher observes one fixed spreadsheet path per machine and
// signals once a change has settled.
//
// Spreadsheet writers keep the file open while saving, so every create or
// write restarts a stability timer; the handler only runs after the file has
// been quiet for the whole threshold. A watcher moves through Idle,
// Debouncing and Processing, and its handler never overlaps with itself.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"production_data_import/logger"
)

// State is the position of a watcher in its processing cycle
type State int

const (
	Idle State = iota
	Debouncing
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler ingests the settled file. The context is cancelled when the watcher stops.
type Handler func(ctx context.Context, path string) error

// Status is the externally visible watch session
type Status struct {
	Watching     bool       `json:"watching"`
	WatchPath    string     `json:"watchPath"`
	LastModified *time.Time `json:"lastModified"`
	FileExists   bool       `json:"fileExists"`
	State        string     `json:"state"`
}

// Errors returned by Start
var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrStopped        = errors.New("watcher stopped")
)

// Watcher debounces filesystem events for a single file
type Watcher struct {
	path      string
	threshold time.Duration
	handler   Handler
	log       *zap.SugaredLogger

	mu           sync.Mutex
	state        State
	watching     bool
	started      bool
	stopped      bool
	lastModified *time.Time

	fs       *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for path. It does nothing until Start.
func New(path string, threshold time.Duration, handler Handler) *Watcher {
	path = filepath.Clean(path)
	return &Watcher{
		path:      path,
		threshold: threshold,
		handler:   handler,
		log:       logger.With("component", "watcher", "path", path),
		done:      make(chan struct{}),
	}
}

// Start subscribes to the parent directory and launches the event loop
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.started {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.fs = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.watching = true
	w.state = Idle

	go w.run()

	w.log.Debugw("watch started", "threshold", w.threshold)
	return nil
}

// Stop releases the OS watch handle and waits for the event loop to exit.
// A handler that is running sees its context cancelled; nothing runs after Stop returns.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		started := w.started
		w.stopped = true
		w.watching = false
		w.mu.Unlock()

		if !started {
			close(w.done)
			return
		}

		w.cancel()
		_ = w.fs.Close()
		<-w.done

		w.mu.Lock()
		w.state = Idle
		w.mu.Unlock()
		w.log.Debugw("watch stopped")
	})
}

// State returns the current state of the cycle
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status reports the watch session
func (w *Watcher) Status() Status {
	w.mu.Lock()
	status := Status{
		Watching:  w.watching,
		WatchPath: w.path,
		State:     w.state.String(),
	}
	if w.lastModified != nil {
		t := *w.lastModified
		status.LastModified = &t
	}
	w.mu.Unlock()

	if info, err := os.Stat(w.path); err == nil && !info.IsDir() {
		status.FileExists = true
	}
	return status
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) run() {
	defer close(w.done)

	var (
		timer  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.threshold)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.threshold)
			}
			settle = timer.C
			w.setState(Debouncing)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warnw("fs watcher error", "error", err)

		case <-settle:
			settle = nil
			w.dispatch()
		}
	}
}

// dispatch runs the handler for a settled change and returns the cycle to Idle
func (w *Watcher) dispatch() {
	if w.ctx.Err() != nil {
		return
	}

	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Debugw("settled file disappeared", "error", err)
		w.setState(Idle)
		return
	}
	modified := info.ModTime()

	w.setState(Processing)
	if err := w.handler(w.ctx, w.path); err != nil {
		w.log.Warnw("processing failed", "error", err)
	}

	w.mu.Lock()
	w.state = Idle
	w.lastModified = &modified
	w.mu.Unlock()
}
