package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher hot-reloads ai_config.json on write, publishing the reloaded
// Config through Current() without disrupting callers mid-read.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	state   snapshot
	done    chan struct{}
}

// NewWatcher loads path once, then starts watching its parent directory
// (matching fsnotify's usual rename/atomic-replace-safe idiom) for
// further writes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	w := &Watcher{path: path, watcher: fw, done: make(chan struct{})}
	w.state.set(cfg)

	if path != "" {
		if err := fw.Add(dirOf(path)); err != nil {
			fw.Close()
			return nil, fmt.Errorf("config: watch %s: %w", path, err)
		}
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded configuration. Safe for
// concurrent use.
func (w *Watcher) Current() *Config {
	return w.state.get()
}

// Stop halts the watch goroutine and releases the fsnotify handle.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config: watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("config: reload failed, keeping previous config")
		return
	}
	w.state.set(cfg)
	log.Info().Str("path", w.path).Msg("config: reloaded")
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
