package packet

// RelayOps tells the buyer how to point its transmitter at the seller.
type RelayOps struct {
	Azimuth   uint16
	Elevation uint16
	Frequency uint32 // Hz
	Duration  uint32 // ms
}

// Ack is the ground's settlement acknowledgement. EncTunnel holds an
// encrypted TunnelData record and must be exactly Codec.Size(KindTunnel)
// bytes long.
type Ack struct {
	Header     Header
	TargetTxID uint32
	Status     uint8
	Relay      RelayOps
	EncTunnel  []byte
	CRC32      uint32
}

func (a *Ack) Kind() Kind            { return KindAck }
func (a *Ack) RecordHeader() *Header { return &a.Header }

func (a *Ack) marshalBody(w *bodyWriter) {
	w.u32(FieldTargetTxID, a.TargetTxID)
	w.u8(FieldStatus, a.Status)
	w.u16(FieldAzimuth, a.Relay.Azimuth)
	w.u16(FieldElevation, a.Relay.Elevation)
	w.u32(FieldFrequency, a.Relay.Frequency)
	w.u32(FieldDuration, a.Relay.Duration)
	w.bytes(FieldEncTunnel, a.EncTunnel)
	w.u32(FieldCRC32, a.CRC32)
}

func (a *Ack) unmarshalBody(r *bodyReader) {
	a.TargetTxID = r.u32(FieldTargetTxID)
	a.Status = r.u8(FieldStatus)
	a.Relay.Azimuth = r.u16(FieldAzimuth)
	a.Relay.Elevation = r.u16(FieldElevation)
	a.Relay.Frequency = r.u32(FieldFrequency)
	a.Relay.Duration = r.u32(FieldDuration)
	a.EncTunnel = r.owned(FieldEncTunnel)
	a.CRC32 = r.u32(FieldCRC32)
}
