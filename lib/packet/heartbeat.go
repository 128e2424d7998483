package packet

// Heartbeat (L) is periodic housekeeping telemetry. Latitude and longitude
// are fixed-point degrees scaled by 1e7.
type Heartbeat struct {
	Header      Header
	EpochTS     uint64
	VBattMV     uint16
	TempC       int16 // centi-degrees Celsius
	PressurePa  uint32
	SysState    uint8
	SatLock     uint8
	LatFixed    int32
	LonFixed    int32
	GPSSpeedCMS uint16
	CRC32       uint32
}

func (l *Heartbeat) Kind() Kind            { return KindHeartbeat }
func (l *Heartbeat) RecordHeader() *Header { return &l.Header }

func (l *Heartbeat) marshalBody(w *bodyWriter) {
	w.u64(FieldEpochTS, l.EpochTS)
	w.u16(FieldVBattMV, l.VBattMV)
	w.u16(FieldTempC, uint16(l.TempC))
	w.u32(FieldPressurePa, l.PressurePa)
	w.u8(FieldSysState, l.SysState)
	w.u8(FieldSatLock, l.SatLock)
	w.u32(FieldLatFixed, uint32(l.LatFixed))
	w.u32(FieldLonFixed, uint32(l.LonFixed))
	w.u16(FieldGPSSpeedCMS, l.GPSSpeedCMS)
	w.u32(FieldCRC32, l.CRC32)
}

func (l *Heartbeat) unmarshalBody(r *bodyReader) {
	l.EpochTS = r.u64(FieldEpochTS)
	l.VBattMV = r.u16(FieldVBattMV)
	l.TempC = int16(r.u16(FieldTempC))
	l.PressurePa = r.u32(FieldPressurePa)
	l.SysState = r.u8(FieldSysState)
	l.SatLock = r.u8(FieldSatLock)
	l.LatFixed = int32(r.u32(FieldLatFixed))
	l.LonFixed = int32(r.u32(FieldLonFixed))
	l.GPSSpeedCMS = r.u16(FieldGPSSpeedCMS)
	l.CRC32 = r.u32(FieldCRC32)
}
