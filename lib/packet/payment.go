package packet

// Payment (B) carries an encrypted invoice body. SatID and Nonce stay in
// cleartext so the receiver can pick the sender key and the keystream.
type Payment struct {
	Header     Header
	EpochTS    uint64
	PosVec     [3]float64
	EncPayload [CiphertextSize]byte
	SatID      uint32
	Nonce      uint32
	Signature  [SignatureSize]byte
	GlobalCRC  uint32
}

func (p *Payment) Kind() Kind            { return KindPayment }
func (p *Payment) RecordHeader() *Header { return &p.Header }

func (p *Payment) marshalBody(w *bodyWriter) {
	w.u64(FieldEpochTS, p.EpochTS)
	w.f64s(FieldPosVec, p.PosVec[:])
	w.bytes(FieldEncPayload, p.EncPayload[:])
	w.u32(FieldSatID, p.SatID)
	w.u32(FieldNonce, p.Nonce)
	w.bytes(FieldSignature, p.Signature[:])
	w.u32(FieldGlobalCRC, p.GlobalCRC)
}

func (p *Payment) unmarshalBody(r *bodyReader) {
	p.EpochTS = r.u64(FieldEpochTS)
	r.f64s(FieldPosVec, p.PosVec[:])
	r.bytes(FieldEncPayload, p.EncPayload[:])
	p.SatID = r.u32(FieldSatID)
	p.Nonce = r.u32(FieldNonce)
	r.bytes(FieldSignature, p.Signature[:])
	p.GlobalCRC = r.u32(FieldGlobalCRC)
}
