package packet

// Invoice (A) is the seller's cleartext price quote.
type Invoice struct {
	Header  Header
	EpochTS uint64
	PosVec  [3]float64
	VelVec  [3]float32
	SatID   uint32
	Amount  uint64
	AssetID uint16
	CRC32   uint32
}

func (i *Invoice) Kind() Kind            { return KindInvoice }
func (i *Invoice) RecordHeader() *Header { return &i.Header }

func (i *Invoice) marshalBody(w *bodyWriter) {
	w.u64(FieldEpochTS, i.EpochTS)
	w.f64s(FieldPosVec, i.PosVec[:])
	w.f32s(FieldVelVec, i.VelVec[:])
	w.u32(FieldSatID, i.SatID)
	w.u64(FieldAmount, i.Amount)
	w.u16(FieldAssetID, i.AssetID)
	w.u32(FieldCRC32, i.CRC32)
}

func (i *Invoice) unmarshalBody(r *bodyReader) {
	i.EpochTS = r.u64(FieldEpochTS)
	r.f64s(FieldPosVec, i.PosVec[:])
	r.f32s(FieldVelVec, i.VelVec[:])
	i.SatID = r.u32(FieldSatID)
	i.Amount = r.u64(FieldAmount)
	i.AssetID = r.u16(FieldAssetID)
	i.CRC32 = r.u32(FieldCRC32)
}
