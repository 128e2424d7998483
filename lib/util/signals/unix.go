//go:build !windows

package signals

import (
	"os/signal"
	"syscall"
)

func init() {
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

// Handle dispatches signals until StopHandle is called.
func Handle() {
	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			handleReload()
		case syscall.SIGINT, syscall.SIGTERM:
			log.WithField("signal", sig.String()).Debug("shutting down")
			Shutdown()
		}
	}
}
