// Package imagewatch notifies when program images are rebuilt.
package imagewatch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/logflags"
)

// Watcher calls a function when a watched file changes. Events are
// coalesced: the function is called once the file has been quiet for the
// configured delay.
type Watcher struct {
	w        *fsnotify.Watcher
	delay    time.Duration
	onChange func(key int)

	mu     sync.Mutex
	files  map[string]int
	dirs   map[string]bool
	timers map[int]*time.Timer
	closed bool

	done chan struct{}
	log  *logrus.Entry
}

// New creates a Watcher that calls onChange with the key of a file passed
// to Add after the file changes.
func New(delay time.Duration, onChange func(key int)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		w:        fw,
		delay:    delay,
		onChange: onChange,
		files:    make(map[string]int),
		dirs:     make(map[string]bool),
		timers:   make(map[int]*time.Timer),
		done:     make(chan struct{}),
		log:      logflags.WatchLogger(),
	}
	go w.loop()
	return w, nil
}

// Add watches file under key. The directory containing the file is
// watched, so that files replaced by the build tools are still seen.
func (w *Watcher) Add(key int, file string) error {
	file = filepath.Clean(file)
	dir := filepath.Dir(file)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.w.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[file] = key
	w.log.Debugf("watching %s", file)
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.changed(filepath.Clean(ev.Name))
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Errorf("watch error: %v", err)
		}
	}
}

func (w *Watcher) changed(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key, ok := w.files[file]
	if !ok || w.closed {
		return
	}
	w.log.Debugf("%s changed", file)
	if t, ok := w.timers[key]; ok {
		t.Reset(w.delay)
		return
	}
	w.timers[key] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.timers, key)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.onChange(key)
		}
	})
}

// Close stops watching. Pending notifications are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	w.mu.Unlock()
	err := w.w.Close()
	<-w.done
	return err
}
