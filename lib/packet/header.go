package packet

/*
CCSDS primary header (6 bytes, big-endian)

+--------+--------+--------+--------+--------+--------+
|VVVTSAAA|AAAAAAAA|FFCCCCCC|CCCCCCCC|   packet_len    |
+--------+--------+--------+--------+--------+--------+

V :: version, 3 bits, always 000
T :: type, 1 bit, 0 = telemetry, 1 = command
S :: secondary header flag, 1 bit
A :: APID, 11 bits, identifies the sending role
F :: sequence flags, 2 bits, 11 = unsegmented
C :: sequence count, 14 bits
packet_len :: total record length - 1

SNLP header (14 bytes) = sync word (4, big-endian) + CCSDS header + 4 zero bytes.
*/

import (
	"encoding/binary"

	"github.com/samber/oops"
)

// Header is the decoded primary header of a record.
type Header struct {
	Version   uint8
	Type      uint8
	SecHeader bool
	APID      uint16
	SeqFlags  uint8
	SeqCount  uint16
	PacketLen uint16
}

// validate checks every header field against its bit width and the record
// size it is about to describe.
func (h *Header) validate(size int) error {
	switch {
	case h.Version != ProtocolVersion:
		return oops.Wrapf(ErrStructuralMismatch, "unsupported version %d", h.Version)
	case h.Type > TypeCommand:
		return oops.Wrapf(ErrStructuralMismatch, "type bit out of range: %d", h.Type)
	case h.APID > MaxAPID:
		return oops.Wrapf(ErrStructuralMismatch, "apid out of range: 0x%x", h.APID)
	case h.SeqFlags > SeqUnsegmented:
		return oops.Wrapf(ErrStructuralMismatch, "sequence flags out of range: %d", h.SeqFlags)
	case h.SeqCount > MaxSeqCount:
		return oops.Wrapf(ErrStructuralMismatch, "sequence count out of range: %d", h.SeqCount)
	case int(h.PacketLen) != size-1:
		return oops.Wrapf(ErrStructuralMismatch, "packet_len %d does not match record size %d", h.PacketLen, size)
	}
	return nil
}

func putCCSDS(buf []byte, h *Header) {
	var sec byte
	if h.SecHeader {
		sec = 1
	}
	buf[0] = h.Version<<5 | h.Type<<4 | sec<<3 | byte(h.APID>>8)&0x07
	buf[1] = byte(h.APID)
	buf[2] = h.SeqFlags<<6 | byte(h.SeqCount>>8)&0x3F
	buf[3] = byte(h.SeqCount)
	binary.BigEndian.PutUint16(buf[4:6], h.PacketLen)
}

func readCCSDS(buf []byte) Header {
	return Header{
		Version:   buf[0] >> 5,
		Type:      (buf[0] >> 4) & 0x01,
		SecHeader: buf[0]&0x08 != 0,
		APID:      uint16(buf[0]&0x07)<<8 | uint16(buf[1]),
		SeqFlags:  buf[2] >> 6,
		SeqCount:  uint16(buf[2]&0x3F)<<8 | uint16(buf[3]),
		PacketLen: binary.BigEndian.Uint16(buf[4:6]),
	}
}

func (c *Codec) putHeader(buf []byte, h *Header) {
	if c.tier == TierCommunity {
		binary.BigEndian.PutUint32(buf[0:4], SNLPSyncWord)
		putCCSDS(buf[4:10], h)
		clear(buf[10:14])
		return
	}
	putCCSDS(buf[0:6], h)
}

func (c *Codec) readHeader(buf []byte) (Header, error) {
	if c.tier == TierCommunity {
		if sync := binary.BigEndian.Uint32(buf[0:4]); sync != SNLPSyncWord {
			return Header{}, oops.Wrapf(ErrStructuralMismatch, "bad sync word 0x%08x", sync)
		}
		if !allZero(buf[10:14]) {
			return Header{}, oops.Wrapf(ErrStructuralMismatch, "non-zero header padding")
		}
		return readCCSDS(buf[4:10]), nil
	}
	return readCCSDS(buf[0:6]), nil
}

// PeekHeader decodes the header of buf without checking the body. It is
// meant for routing decisions; records must still go through
// DecodeAndValidate before they are trusted.
func (c *Codec) PeekHeader(buf []byte) (Header, error) {
	if len(buf) < c.HeaderSize() {
		return Header{}, oops.Wrapf(ErrStructuralMismatch, "%d bytes is shorter than a header", len(buf))
	}
	return c.readHeader(buf)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
