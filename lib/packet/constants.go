package packet

import (
	"errors"
	"fmt"
	"strings"
)

// Tier selects the header layout shared by every record of a link.
type Tier int

const (
	// TierEnterprise uses the bare 6-byte CCSDS header (S-band links).
	TierEnterprise Tier = iota + 1
	// TierCommunity uses the 14-byte SNLP header (LoRa links).
	TierCommunity
)

func (t Tier) String() string {
	switch t {
	case TierEnterprise:
		return "enterprise"
	case TierCommunity:
		return "community"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// ParseTier maps a configuration string onto a Tier.
// "ccsds" and "snlp" are accepted as aliases.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enterprise", "ccsds":
		return TierEnterprise, nil
	case "community", "snlp":
		return TierCommunity, nil
	default:
		return 0, fmt.Errorf("unknown protocol tier %q", s)
	}
}

// Kind identifies a record layout.
type Kind int

const (
	KindHandshake Kind = iota
	KindInvoice
	KindPayment
	KindTunnel
	KindAck
	KindReceipt
	KindDelivery
	KindHeartbeat
	kindCount
)

var kindNames = [kindCount]string{
	KindHandshake: "handshake",
	KindInvoice:   "invoice",
	KindPayment:   "payment",
	KindTunnel:    "tunnel",
	KindAck:       "ack",
	KindReceipt:   "receipt",
	KindDelivery:  "delivery",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every record kind in wire-table order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind maps a record name (or its single-letter alias) onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "handshake", "h":
		return KindHandshake, nil
	case "invoice", "a":
		return KindInvoice, nil
	case "payment", "b":
		return KindPayment, nil
	case "tunnel":
		return KindTunnel, nil
	case "ack":
		return KindAck, nil
	case "receipt", "c":
		return KindReceipt, nil
	case "delivery", "d":
		return KindDelivery, nil
	case "heartbeat", "l":
		return KindHeartbeat, nil
	default:
		return 0, fmt.Errorf("unknown record kind %q", s)
	}
}

// Header sizes per tier.
const (
	CCSDSHeaderSize = 6
	SNLPHeaderSize  = 14
	// SNLPSyncWord prefixes every community-tier header.
	SNLPSyncWord uint32 = 0x1D01A5A5
)

// ProtocolVersion is the only accepted value of the 3-bit version field
// (CCSDS version-1 is encoded as 0b000).
const ProtocolVersion uint8 = 0

// Packet type bit values.
const (
	TypeTelemetry uint8 = 0
	TypeCommand   uint8 = 1
)

// SeqUnsegmented is the sequence-flags value for standalone records.
const SeqUnsegmented uint8 = 0x03

// Header field limits.
const (
	MaxAPID     uint16 = 0x07FF
	MaxSeqCount uint16 = 0x3FFF
)

// Well-known APIDs.
const (
	APIDGround uint16 = 0x000
	APIDSeller uint16 = 0x0A1
	APIDBuyer  uint16 = 0x0B2
)

// Crypto field sizes.
const (
	PublicKeySize  = 32
	SignatureSize  = 64
	CiphertextSize = 62
	// ReceiptBodySize is the Receipt record without its header; it is the
	// payload embedded in a Delivery record.
	ReceiptBodySize = 98
)

// Tunnel command codes.
const (
	CmdUnlock uint16 = 0x0001
)

// Ack status codes.
const (
	StatusSettled  uint8 = 0x01
	StatusRejected uint8 = 0xFF
)

// DefaultSessionTTL is the default session window in seconds.
const DefaultSessionTTL uint16 = 600

// Packet errors.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrStructuralMismatch = errors.New("record structure mismatch")
	ErrChecksumMismatch   = errors.New("record checksum mismatch")
	ErrUnknownKind        = errors.New("unknown record kind")
)
