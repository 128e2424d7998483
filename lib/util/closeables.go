package util

import (
	"io"
	"sync"
)

var (
	closeOnExit []io.Closer
	closeMutex  sync.Mutex
)

// RegisterCloser registers c to be closed by CloseAll.
func RegisterCloser(c io.Closer) {
	if c == nil {
		return
	}
	closeMutex.Lock()
	defer closeMutex.Unlock()
	closeOnExit = append(closeOnExit, c)
	log.WithField("count", len(closeOnExit)).Debug("registered closer")
}

// CloseAll closes every registered closer, newest first, and clears the
// list. Errors are logged and the first one is returned.
func CloseAll() error {
	closeMutex.Lock()
	list := closeOnExit
	closeOnExit = nil
	closeMutex.Unlock()

	var first error
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].Close(); err != nil {
			log.WithError(err).Warn("error closing resource")
			if first == nil {
				first = err
			}
		}
	}
	log.WithField("count", len(list)).Debug("closed registered resources")
	return first
}
