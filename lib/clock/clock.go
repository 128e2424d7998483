// Package clock provides the time sources the session and bouncer read
// "now" from, including an NTP-corrected clock for ground stations, and the
// timestamp skew check applied to inbound records.
package clock

import (
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Clock is a source of wall-clock time.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Fixed returns a clock that always reads t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// EpochSeconds returns the current Unix time of c in whole seconds, the unit
// every record timestamp and session TTL is expressed in.
func EpochSeconds(c Clock) uint64 {
	s := c.Now().Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
