// Package keys provisions identity seed material and keeps the ring of
// trusted peer identity keys.
//
// Seed files hold the raw material an endpoint's identity is derived from.
// They are written 0600 inside 0700 directories and refused on load when
// group or world can read them.
//
// The key ring is a YAML file listing every peer the endpoint accepts
// signatures from, indexed by sat_id (payments) and APID (handshakes).
package keys

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
