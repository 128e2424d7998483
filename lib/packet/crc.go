package packet

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/samber/oops"
)

// Checksum is the record checksum: CRC-32 (IEEE) over data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// SealCRC computes the checksum of buf over every byte before the checksum
// field of k and stores it in place.
func (c *Codec) SealCRC(buf []byte, k Kind) error {
	off, err := c.crcOffsetFor(buf, k)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], Checksum(buf[:off]))
	return nil
}

// VerifyCRC recomputes the checksum of buf and compares it with the stored
// value. A mismatch wraps ErrChecksumMismatch.
func (c *Codec) VerifyCRC(buf []byte, k Kind) error {
	off, err := c.crcOffsetFor(buf, k)
	if err != nil {
		return err
	}
	stored := binary.LittleEndian.Uint32(buf[off : off+4])
	if got := Checksum(buf[:off]); got != stored {
		return oops.Wrapf(ErrChecksumMismatch, "%s: stored 0x%08x, computed 0x%08x", k, stored, got)
	}
	return nil
}

func (c *Codec) crcOffsetFor(buf []byte, k Kind) (int, error) {
	size := c.Size(k)
	if size == 0 {
		return 0, oops.Wrapf(ErrUnknownKind, "kind %d", int(k))
	}
	if len(buf) != size {
		return 0, oops.Wrapf(ErrStructuralMismatch, "%s record is %d bytes, want %d", k, len(buf), size)
	}
	off, ok := c.CRCOffset(k)
	if !ok {
		return 0, oops.Wrapf(ErrUnknownKind, "%s has no checksum field", k)
	}
	return off, nil
}

// Seal encodes rec, fills in its checksum and returns the wire bytes. The
// checksum field of rec is updated to match.
func (c *Codec) Seal(rec Record) ([]byte, error) {
	buf, err := c.Encode(rec)
	if err != nil {
		return nil, err
	}
	if err := c.SealCRC(buf, rec.Kind()); err != nil {
		return nil, err
	}
	off, _ := c.CRCOffset(rec.Kind())
	setChecksum(rec, binary.LittleEndian.Uint32(buf[off:off+4]))
	return buf, nil
}

func setChecksum(rec Record, v uint32) {
	switch r := rec.(type) {
	case *Invoice:
		r.CRC32 = v
	case *Payment:
		r.GlobalCRC = v
	case *TunnelData:
		r.CRC32 = v
	case *Ack:
		r.CRC32 = v
	case *Receipt:
		r.CRC32 = v
	case *Delivery:
		r.GlobalCRC = v
	case *Heartbeat:
		r.CRC32 = v
	}
}
