package bridge

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// Frame tags.
const (
	TagHandshake    = "HANDSHAKE_TX:"
	TagInvoice      = "INVOICE:"
	TagPayment      = "PACKET_B:"
	TagDelivery     = "PACKET_D:"
	TagHandshakeAck = "HANDSHAKE_ACK:"
	TagAckDownlink  = "ACK_DOWNLINK:"

	CmdTriggerHandshake = "H"
	CmdApproveBuy       = "ACK_BUY"
)

var (
	ErrUnknownFrame   = errors.New("unknown frame tag")
	ErrMalformedFrame = errors.New("malformed frame")
)

// inbound lists the tags accepted from the modem, in match order.
var inbound = []string{TagHandshake, TagInvoice, TagPayment, TagDelivery}

// ParseFrame finds the first known tag in line and decodes the hex after
// it. Modem firmware prefixes its own log noise, so the tag does not have
// to start the line.
func ParseFrame(line string) (tag string, payload []byte, err error) {
	for _, t := range inbound {
		i := strings.Index(line, t)
		if i < 0 {
			continue
		}
		raw := strings.TrimSpace(line[i+len(t):])
		if raw == "" {
			return t, nil, oops.Wrapf(ErrMalformedFrame, "%s frame has no payload", strings.TrimSuffix(t, ":"))
		}
		payload, err := hex.DecodeString(raw)
		if err != nil {
			return t, nil, oops.Wrapf(ErrMalformedFrame, "%s payload: %v", strings.TrimSuffix(t, ":"), err)
		}
		return t, payload, nil
	}
	return "", nil, ErrUnknownFrame
}

// FormatFrame renders an outbound frame, newline included.
func FormatFrame(tag string, payload []byte) string {
	return tag + hex.EncodeToString(payload) + "\n"
}
