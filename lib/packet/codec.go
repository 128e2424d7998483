package packet

import (
	"fmt"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Codec encodes and decodes records for a single protocol tier.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	tier    Tier
	layouts [kindCount]*layout
}

// NewCodec builds the field tables for tier. It panics on an unknown tier;
// configuration code should go through ParseTier first.
func NewCodec(tier Tier) *Codec {
	if tier != TierEnterprise && tier != TierCommunity {
		panic(fmt.Sprintf("packet: unknown tier %d", int(tier)))
	}
	return &Codec{tier: tier, layouts: buildLayouts(tier)}
}

// Tier returns the header layout this codec was built for.
func (c *Codec) Tier() Tier { return c.tier }

// HeaderSize returns the header length in bytes.
func (c *Codec) HeaderSize() int { return headerSize(c.tier) }

func (c *Codec) layout(k Kind) (*layout, error) {
	if k < 0 || k >= kindCount {
		return nil, oops.Wrapf(ErrUnknownKind, "kind %d", int(k))
	}
	return c.layouts[k], nil
}

// Size returns the fixed record length of k, or 0 for an unknown kind.
func (c *Codec) Size(k Kind) int {
	l, err := c.layout(k)
	if err != nil {
		return 0
	}
	return c.HeaderSize() + l.body
}

// Fields returns the body table of k with offsets made absolute.
func (c *Codec) Fields(k Kind) []Field {
	l, err := c.layout(k)
	if err != nil {
		return nil
	}
	out := make([]Field, len(l.fields))
	for i, f := range l.fields {
		f.Offset += c.HeaderSize()
		out[i] = f
	}
	return out
}

// FieldOffset returns the absolute offset and size of a named field.
func (c *Codec) FieldOffset(k Kind, name string) (offset, size int, ok bool) {
	l, err := c.layout(k)
	if err != nil {
		return 0, 0, false
	}
	i, ok := l.index[name]
	if !ok {
		return 0, 0, false
	}
	f := l.fields[i]
	return c.HeaderSize() + f.Offset, f.Size, true
}

// SignedPrefix returns the length of the prefix covered by the record's
// signature: every byte up to, not including, the signature field.
func (c *Codec) SignedPrefix(k Kind) (int, bool) {
	if off, _, ok := c.FieldOffset(k, FieldSignature); ok {
		return off, true
	}
	if off, _, ok := c.FieldOffset(k, FieldGroundSig); ok {
		return off, true
	}
	return 0, false
}

// CRCOffset returns the absolute offset of the record's checksum field.
// The checksum covers every byte before it.
func (c *Codec) CRCOffset(k Kind) (int, bool) {
	if off, _, ok := c.FieldOffset(k, FieldGlobalCRC); ok {
		return off, true
	}
	off, _, ok := c.FieldOffset(k, FieldCRC32)
	return off, ok
}

func defaultType(k Kind) uint8 {
	switch k {
	case KindAck, KindTunnel:
		return TypeCommand
	default:
		return TypeTelemetry
	}
}

// NewHeader returns a valid unsegmented header for a record of kind k sent
// by apid. The caller owns the sequence count.
func (c *Codec) NewHeader(k Kind, apid uint16) Header {
	return Header{
		Version:   ProtocolVersion,
		Type:      defaultType(k),
		SecHeader: true,
		APID:      apid & MaxAPID,
		SeqFlags:  SeqUnsegmented,
		PacketLen: uint16(c.Size(k) - 1),
	}
}

// Encode serializes rec into a new buffer of exactly Size(rec.Kind()) bytes.
func (c *Codec) Encode(rec Record) ([]byte, error) {
	buf := make([]byte, c.Size(rec.Kind()))
	if err := c.EncodeInto(rec, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto serializes rec into buf, which must be exactly the record size.
// On error buf may hold a partial encoding and must be discarded.
func (c *Codec) EncodeInto(rec Record, buf []byte) error {
	k := rec.Kind()
	l, err := c.layout(k)
	if err != nil {
		return err
	}
	size := c.HeaderSize() + l.body
	if len(buf) != size {
		return oops.Wrapf(ErrStructuralMismatch, "%s buffer is %d bytes, want %d", k, len(buf), size)
	}
	h := rec.RecordHeader()
	if err := h.validate(size); err != nil {
		return oops.Wrapf(err, "encode %s", k)
	}
	c.putHeader(buf, h)
	w := &bodyWriter{buf: buf[c.HeaderSize():], l: l}
	rec.marshalBody(w)
	w.pads()
	return w.err
}

// DecodeAndValidate checks that buf is exactly one record of kind k and
// decodes it. The length check happens before any byte is interpreted.
// Header version, packet_len, sync word and padding are all enforced.
// Checksums and signatures are not; see VerifyCRC.
func (c *Codec) DecodeAndValidate(buf []byte, k Kind) (Record, error) {
	l, err := c.layout(k)
	if err != nil {
		return nil, err
	}
	size := c.HeaderSize() + l.body
	if len(buf) != size {
		log.WithFields(logger.Fields{
			"at":       "Codec.DecodeAndValidate",
			"kind":     k.String(),
			"got_len":  len(buf),
			"want_len": size,
		}).Debug("rejecting record with wrong length")
		return nil, oops.Wrapf(ErrStructuralMismatch, "%s record is %d bytes, want %d", k, len(buf), size)
	}
	h, err := c.readHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.validate(size); err != nil {
		return nil, oops.Wrapf(err, "decode %s", k)
	}
	r := &bodyReader{buf: buf[c.HeaderSize():], l: l}
	if err := r.checkPads(); err != nil {
		return nil, err
	}
	rec, _ := newRecord(k)
	rec.unmarshalBody(r)
	*rec.RecordHeader() = h
	return rec, nil
}

// DecodeBody decodes a header-less record body, such as a decrypted invoice
// carried in a Payment. The returned record has a zero Header.
func (c *Codec) DecodeBody(body []byte, k Kind) (Record, error) {
	l, err := c.layout(k)
	if err != nil {
		return nil, err
	}
	if len(body) != l.body {
		return nil, oops.Wrapf(ErrStructuralMismatch, "%s body is %d bytes, want %d", k, len(body), l.body)
	}
	r := &bodyReader{buf: body, l: l}
	if err := r.checkPads(); err != nil {
		return nil, err
	}
	rec, _ := newRecord(k)
	rec.unmarshalBody(r)
	return rec, nil
}

// Body returns the body of an encoded record after checking its length.
// The returned slice aliases buf.
func (c *Codec) Body(buf []byte, k Kind) ([]byte, error) {
	size := c.Size(k)
	if size == 0 {
		return nil, oops.Wrapf(ErrUnknownKind, "kind %d", int(k))
	}
	if len(buf) != size {
		return nil, oops.Wrapf(ErrStructuralMismatch, "%s record is %d bytes, want %d", k, len(buf), size)
	}
	return buf[c.HeaderSize():], nil
}

// Identify guesses the kind of buf from its length. Where two kinds share a
// size the header type bit decides. The result still needs DecodeAndValidate.
func (c *Codec) Identify(buf []byte) (Kind, error) {
	var candidates []Kind
	for k := Kind(0); k < kindCount; k++ {
		if c.Size(k) == len(buf) {
			candidates = append(candidates, k)
		}
	}
	switch len(candidates) {
	case 0:
		return 0, oops.Wrapf(ErrStructuralMismatch, "no %s record is %d bytes", c.tier, len(buf))
	case 1:
		return candidates[0], nil
	}
	h, err := c.PeekHeader(buf)
	if err != nil {
		return 0, err
	}
	for _, k := range candidates {
		if defaultType(k) == h.Type {
			return k, nil
		}
	}
	return 0, oops.Wrapf(ErrStructuralMismatch, "ambiguous %d-byte record", len(buf))
}

// DecodeHandshake is DecodeAndValidate for KindHandshake.
func (c *Codec) DecodeHandshake(buf []byte) (*Handshake, error) {
	rec, err := c.DecodeAndValidate(buf, KindHandshake)
	if err != nil {
		return nil, err
	}
	return rec.(*Handshake), nil
}

// DecodeInvoice is DecodeAndValidate for KindInvoice.
func (c *Codec) DecodeInvoice(buf []byte) (*Invoice, error) {
	rec, err := c.DecodeAndValidate(buf, KindInvoice)
	if err != nil {
		return nil, err
	}
	return rec.(*Invoice), nil
}

// DecodePayment is DecodeAndValidate for KindPayment.
func (c *Codec) DecodePayment(buf []byte) (*Payment, error) {
	rec, err := c.DecodeAndValidate(buf, KindPayment)
	if err != nil {
		return nil, err
	}
	return rec.(*Payment), nil
}

// DecodeTunnel is DecodeAndValidate for KindTunnel.
func (c *Codec) DecodeTunnel(buf []byte) (*TunnelData, error) {
	rec, err := c.DecodeAndValidate(buf, KindTunnel)
	if err != nil {
		return nil, err
	}
	return rec.(*TunnelData), nil
}

// DecodeAck is DecodeAndValidate for KindAck.
func (c *Codec) DecodeAck(buf []byte) (*Ack, error) {
	rec, err := c.DecodeAndValidate(buf, KindAck)
	if err != nil {
		return nil, err
	}
	return rec.(*Ack), nil
}

// DecodeReceipt is DecodeAndValidate for KindReceipt.
func (c *Codec) DecodeReceipt(buf []byte) (*Receipt, error) {
	rec, err := c.DecodeAndValidate(buf, KindReceipt)
	if err != nil {
		return nil, err
	}
	return rec.(*Receipt), nil
}

// DecodeDelivery is DecodeAndValidate for KindDelivery.
func (c *Codec) DecodeDelivery(buf []byte) (*Delivery, error) {
	rec, err := c.DecodeAndValidate(buf, KindDelivery)
	if err != nil {
		return nil, err
	}
	return rec.(*Delivery), nil
}

// DecodeHeartbeat is DecodeAndValidate for KindHeartbeat.
func (c *Codec) DecodeHeartbeat(buf []byte) (*Heartbeat, error) {
	rec, err := c.DecodeAndValidate(buf, KindHeartbeat)
	if err != nil {
		return nil, err
	}
	return rec.(*Heartbeat), nil
}

// WrapReceipt copies the body of rcpt into the payload of d.
func (c *Codec) WrapReceipt(rcpt *Receipt, d *Delivery) error {
	buf, err := c.Encode(rcpt)
	if err != nil {
		return oops.Wrapf(err, "wrap receipt")
	}
	copy(d.Payload[:], buf[c.HeaderSize():])
	return nil
}

// UnwrapReceipt rebuilds the Receipt carried by d. The receipt header is not
// transmitted, so a fresh one is synthesized for apid.
func (c *Codec) UnwrapReceipt(d *Delivery, apid uint16) (*Receipt, error) {
	buf := make([]byte, c.Size(KindReceipt))
	h := c.NewHeader(KindReceipt, apid)
	c.putHeader(buf, &h)
	copy(buf[c.HeaderSize():], d.Payload[:])
	rcpt, err := c.DecodeReceipt(buf)
	if err != nil {
		return nil, oops.Wrapf(err, "unwrap receipt")
	}
	return rcpt, nil
}
