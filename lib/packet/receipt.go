package packet

// Receipt (C) is the seller's signed execution confirmation.
type Receipt struct {
	Header    Header
	ExecTime  uint64
	EncTxID   uint64
	EncStatus uint8
	Signature [SignatureSize]byte
	CRC32     uint32
}

func (c *Receipt) Kind() Kind            { return KindReceipt }
func (c *Receipt) RecordHeader() *Header { return &c.Header }

func (c *Receipt) marshalBody(w *bodyWriter) {
	w.u64(FieldExecTime, c.ExecTime)
	w.u64(FieldEncTxID, c.EncTxID)
	w.u8(FieldEncStatus, c.EncStatus)
	w.bytes(FieldSignature, c.Signature[:])
	w.u32(FieldCRC32, c.CRC32)
}

func (c *Receipt) unmarshalBody(r *bodyReader) {
	c.ExecTime = r.u64(FieldExecTime)
	c.EncTxID = r.u64(FieldEncTxID)
	c.EncStatus = r.u8(FieldEncStatus)
	r.bytes(FieldSignature, c.Signature[:])
	c.CRC32 = r.u32(FieldCRC32)
}
