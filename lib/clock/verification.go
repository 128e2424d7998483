package clock

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/samber/oops"
)

const (
	maxRTT            = 2 * time.Second
	maxClockOffset    = 10 * time.Minute
	maxRootDispersion = 1 * time.Second
	maxRootDelay      = 1 * time.Second
)

// validateResponse rejects samples from unsynchronized or distant servers.
func validateResponse(r *ntp.Response) error {
	switch {
	case r.Leap == ntp.LeapNotInSync:
		return oops.Errorf("server clock not synchronized")
	case r.Stratum == 0 || r.Stratum > 15:
		return oops.Errorf("stratum %d out of range", r.Stratum)
	case r.RTT < 0 || r.RTT > maxRTT:
		return oops.Errorf("round-trip delay %s out of bounds", r.RTT)
	case absDuration(r.ClockOffset) > maxClockOffset:
		return oops.Errorf("clock offset %s out of bounds", r.ClockOffset)
	case r.Time.IsZero():
		return oops.Errorf("zero time")
	case r.RootDispersion > maxRootDispersion:
		return oops.Errorf("root dispersion %s too high", r.RootDispersion)
	case r.RootDelay > maxRootDelay:
		return oops.Errorf("root delay %s too high", r.RootDelay)
	}
	return nil
}
