package packet

// Delivery (D) is the buyer's downlink wrapper around a Receipt body.
type Delivery struct {
	Header     Header
	DownlinkTS uint64
	SatBID     uint32
	Payload    [ReceiptBodySize]byte
	GlobalCRC  uint32
}

func (d *Delivery) Kind() Kind            { return KindDelivery }
func (d *Delivery) RecordHeader() *Header { return &d.Header }

func (d *Delivery) marshalBody(w *bodyWriter) {
	w.u64(FieldDownlinkTS, d.DownlinkTS)
	w.u32(FieldSatBID, d.SatBID)
	w.bytes(FieldPayload, d.Payload[:])
	w.u32(FieldGlobalCRC, d.GlobalCRC)
}

func (d *Delivery) unmarshalBody(r *bodyReader) {
	d.DownlinkTS = r.u64(FieldDownlinkTS)
	d.SatBID = r.u32(FieldSatBID)
	r.bytes(FieldPayload, d.Payload[:])
	d.GlobalCRC = r.u32(FieldGlobalCRC)
}
