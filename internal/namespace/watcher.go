package namespace

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watcher invalidates the resolver cache when the writable scratch segment
// changes, so ad hoc package installs become visible without a restart.
type watcher struct {
	fw     *fsnotify.Watcher
	done   chan struct{}
	logger zerolog.Logger
}

func newWatcher(dir string, onChange func(), logger zerolog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &watcher{
		fw:     fw,
		done:   make(chan struct{}),
		logger: logger,
	}

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					onChange()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("scratch segment watch error")
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

func (w *watcher) close() error {
	close(w.done)
	return w.fw.Close()
}
