// Package signals dispatches process signals to registered handlers.
//
// SIGHUP runs the reload handlers. SIGINT and SIGTERM run Shutdown: the
// pre-shutdown handlers first, bounded by a timeout, then the interrupt
// handlers. Handlers run in registration order and a panicking handler does
// not stop the ones after it.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// defaultGracefulTimeout bounds the pre-shutdown phase.
const defaultGracefulTimeout = 30 * time.Second

// sigChan is buffered to avoid missing signals delivered while no receiver is ready.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

// HandlerID identifies a registration so it can be removed again.
type HandlerID int

type registeredHandler struct {
	id HandlerID
	fn Handler
}

// registry is an ordered list of handlers.
type registry struct {
	name     string
	handlers []registeredHandler
}

var (
	mu              sync.Mutex
	nextID          HandlerID
	reloaders       = &registry{name: "reload"}
	preShutdown     = &registry{name: "pre-shutdown"}
	interrupters    = &registry{name: "interrupt"}
	gracefulTimeout = defaultGracefulTimeout
	stopOnce        sync.Once
)

func register(r *registry, f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	r.handlers = append(r.handlers, registeredHandler{id: id, fn: f})
	return id
}

func deregister(r *registry, id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

func snapshot(r *registry) []registeredHandler {
	mu.Lock()
	defer mu.Unlock()
	out := make([]registeredHandler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

func run(r *registry) {
	for _, h := range snapshot(r) {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.WithFields(logger.Fields{
						"at":      "signals.run",
						"phase":   r.name,
						"handler": int(h.id),
						"panic":   p,
					}).Error("signal handler panicked")
				}
			}()
			h.fn()
		}()
	}
}

// RegisterReloadHandler registers a handler called on SIGHUP.
// Nil handlers are ignored and return -1.
func RegisterReloadHandler(f Handler) HandlerID { return register(reloaders, f) }

// DeregisterReloadHandler removes a reload handler.
func DeregisterReloadHandler(id HandlerID) { deregister(reloaders, id) }

// RegisterPreShutdownHandler registers a handler that runs before the
// interrupt handlers, such as closing an input stream.
func RegisterPreShutdownHandler(f Handler) HandlerID { return register(preShutdown, f) }

// DeregisterPreShutdownHandler removes a pre-shutdown handler.
func DeregisterPreShutdownHandler(id HandlerID) { deregister(preShutdown, id) }

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
func RegisterInterruptHandler(f Handler) HandlerID { return register(interrupters, f) }

// DeregisterInterruptHandler removes an interrupt handler.
func DeregisterInterruptHandler(id HandlerID) { deregister(interrupters, id) }

// SetGracefulTimeout bounds the pre-shutdown phase. Zero or negative
// restores the default of 30 seconds.
func SetGracefulTimeout(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if d <= 0 {
		d = defaultGracefulTimeout
	}
	gracefulTimeout = d
}

// handlePreShutdown reports whether every pre-shutdown handler finished
// within the graceful timeout.
func handlePreShutdown() bool {
	mu.Lock()
	timeout := gracefulTimeout
	mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(preShutdown)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.WithFields(logger.Fields{
			"at":      "signals.handlePreShutdown",
			"timeout": timeout.String(),
		}).Warn("pre-shutdown handlers timed out")
		return false
	}
}

func handleReload() { run(reloaders) }

func handleInterrupted() { run(interrupters) }

// Shutdown runs the pre-shutdown handlers, then the interrupt handlers.
// It is what SIGINT and SIGTERM trigger, and callers may run it directly on
// a normal exit.
func Shutdown() {
	handlePreShutdown()
	handleInterrupted()
}

// StopHandle makes Handle return. Safe to call more than once.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
