package packet

// TunnelData is the unlock command the ground relays to the seller through
// the buyer. It travels encrypted inside Ack.EncTunnel.
type TunnelData struct {
	Header     Header
	BlockNonce uint64
	CmdCode    uint16
	TTL        uint16
	GroundSig  [SignatureSize]byte
	CRC32      uint32
}

func (t *TunnelData) Kind() Kind            { return KindTunnel }
func (t *TunnelData) RecordHeader() *Header { return &t.Header }

func (t *TunnelData) marshalBody(w *bodyWriter) {
	w.u64(FieldBlockNonce, t.BlockNonce)
	w.u16(FieldCmdCode, t.CmdCode)
	w.u16(FieldTTL, t.TTL)
	w.bytes(FieldGroundSig, t.GroundSig[:])
	w.u32(FieldCRC32, t.CRC32)
}

func (t *TunnelData) unmarshalBody(r *bodyReader) {
	t.BlockNonce = r.u64(FieldBlockNonce)
	t.CmdCode = r.u16(FieldCmdCode)
	t.TTL = r.u16(FieldTTL)
	r.bytes(FieldGroundSig, t.GroundSig[:])
	t.CRC32 = r.u32(FieldCRC32)
}
