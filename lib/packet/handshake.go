package packet

// Handshake (H) carries one side's ephemeral X25519 public key, signed by
// that side's long-term identity key. The signature covers every byte before
// the signature field.
type Handshake struct {
	Header     Header
	SessionTTL uint16
	Timestamp  uint64
	EphPubKey  [PublicKeySize]byte
	Signature  [SignatureSize]byte
}

func (h *Handshake) Kind() Kind            { return KindHandshake }
func (h *Handshake) RecordHeader() *Header { return &h.Header }

func (h *Handshake) marshalBody(w *bodyWriter) {
	w.u16(FieldSessionTTL, h.SessionTTL)
	w.u64(FieldTimestamp, h.Timestamp)
	w.bytes(FieldEphPubKey, h.EphPubKey[:])
	w.bytes(FieldSignature, h.Signature[:])
}

func (h *Handshake) unmarshalBody(r *bodyReader) {
	h.SessionTTL = r.u16(FieldSessionTTL)
	h.Timestamp = r.u64(FieldTimestamp)
	r.bytes(FieldEphPubKey, h.EphPubKey[:])
	r.bytes(FieldSignature, h.Signature[:])
}
