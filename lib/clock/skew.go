package clock

import (
	"errors"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ErrClockSkew is returned when a record timestamp is outside the allowed
// window around local time.
var ErrClockSkew = errors.New("timestamp outside allowed clock skew")

// ValidateSkew checks that the epoch-seconds timestamp ts is within maxSkew
// of now in either direction. A zero timestamp is always rejected.
func ValidateSkew(ts uint64, now time.Time, maxSkew time.Duration) error {
	if maxSkew <= 0 {
		return oops.Errorf("clock skew: maxSkew must be positive, got %s", maxSkew)
	}
	if ts == 0 {
		return oops.Wrapf(ErrClockSkew, "timestamp is zero")
	}

	published := time.Unix(int64(ts), 0)
	skew := now.Sub(published)

	if skew > maxSkew {
		log.WithFields(logger.Fields{
			"at":        "ValidateSkew",
			"published": published.UTC().Format(time.RFC3339),
			"skew":      skew.String(),
			"max":       maxSkew.String(),
		}).Debug("timestamp too far in the past")
		return oops.Wrapf(ErrClockSkew, "timestamp is %s in the past (max %s)", skew, maxSkew)
	}
	if skew < -maxSkew {
		log.WithFields(logger.Fields{
			"at":        "ValidateSkew",
			"published": published.UTC().Format(time.RFC3339),
			"skew":      (-skew).String(),
			"max":       maxSkew.String(),
		}).Debug("timestamp too far in the future")
		return oops.Wrapf(ErrClockSkew, "timestamp is %s in the future (max %s)", -skew, maxSkew)
	}
	return nil
}
