package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samber/oops"
)

// Field names shared by the layout tables.
const (
	FieldSessionTTL  = "session_ttl"
	FieldTimestamp   = "timestamp"
	FieldEphPubKey   = "eph_pub_key"
	FieldSignature   = "signature"
	FieldEpochTS     = "epoch_ts"
	FieldPosVec      = "pos_vec"
	FieldVelVec      = "vel_vec"
	FieldSatID       = "sat_id"
	FieldAmount      = "amount"
	FieldAssetID     = "asset_id"
	FieldCRC32       = "crc32"
	FieldEncPayload  = "enc_payload"
	FieldNonce       = "nonce"
	FieldGlobalCRC   = "global_crc"
	FieldBlockNonce  = "block_nonce"
	FieldCmdCode     = "cmd_code"
	FieldTTL         = "ttl"
	FieldGroundSig   = "ground_sig"
	FieldTargetTxID  = "target_tx_id"
	FieldStatus      = "status"
	FieldAzimuth     = "azimuth"
	FieldElevation   = "elevation"
	FieldFrequency   = "frequency"
	FieldDuration    = "duration"
	FieldEncTunnel   = "enc_tunnel"
	FieldExecTime    = "exec_time"
	FieldEncTxID     = "enc_tx_id"
	FieldEncStatus   = "enc_status"
	FieldDownlinkTS  = "downlink_ts"
	FieldSatBID      = "sat_b_id"
	FieldPayload     = "payload"
	FieldVBattMV     = "vbatt_mv"
	FieldTempC       = "temp_c"
	FieldPressurePa  = "pressure_pa"
	FieldSysState    = "sys_state"
	FieldSatLock     = "sat_lock"
	FieldLatFixed    = "lat_fixed"
	FieldLonFixed    = "lon_fixed"
	FieldGPSSpeedCMS = "gps_speed_cms"

	padPrefix = "_pad"
)

// Field is one entry of a record body table. Offset is relative to the end
// of the header.
type Field struct {
	Name   string
	Offset int
	Size   int
}

// IsPad reports whether the field is alignment padding that must be zero.
func (f Field) IsPad() bool {
	return len(f.Name) >= len(padPrefix) && f.Name[:len(padPrefix)] == padPrefix
}

type layout struct {
	kind   Kind
	body   int
	fields []Field
	index  map[string]int
}

func (l *layout) field(name string) Field {
	i, ok := l.index[name]
	if !ok {
		panic(fmt.Sprintf("packet: %s layout has no field %q", l.kind, name))
	}
	return l.fields[i]
}

type layoutBuilder struct {
	l    *layout
	pads int
}

func newLayout(kind Kind) *layoutBuilder {
	return &layoutBuilder{l: &layout{kind: kind, index: make(map[string]int)}}
}

func (b *layoutBuilder) add(name string, size int) *layoutBuilder {
	b.l.index[name] = len(b.l.fields)
	b.l.fields = append(b.l.fields, Field{Name: name, Offset: b.l.body, Size: size})
	b.l.body += size
	return b
}

func (b *layoutBuilder) pad(size int) *layoutBuilder {
	b.pads++
	return b.add(fmt.Sprintf("%s_%d", padPrefix, b.pads), size)
}

func (b *layoutBuilder) build() *layout {
	return b.l
}

// tunnelSize is the byte length of a Tunnel Data record for the tier, which
// is also the size of the Ack's enc_tunnel field.
func tunnelSize(tier Tier) int {
	return headerSize(tier) + tunnelBodySize
}

const tunnelBodySize = 82

func headerSize(tier Tier) int {
	if tier == TierCommunity {
		return SNLPHeaderSize
	}
	return CCSDSHeaderSize
}

func buildLayouts(tier Tier) [kindCount]*layout {
	var t [kindCount]*layout

	t[KindHandshake] = newLayout(KindHandshake).
		add(FieldSessionTTL, 2).
		add(FieldTimestamp, 8).
		add(FieldEphPubKey, PublicKeySize).
		add(FieldSignature, SignatureSize).
		build()

	t[KindInvoice] = newLayout(KindInvoice).
		add(FieldEpochTS, 8).
		add(FieldPosVec, 24).
		add(FieldVelVec, 12).
		add(FieldSatID, 4).
		add(FieldAmount, 8).
		add(FieldAssetID, 2).
		add(FieldCRC32, 4).
		build()

	t[KindPayment] = newLayout(KindPayment).
		add(FieldEpochTS, 8).
		add(FieldPosVec, 24).
		add(FieldEncPayload, CiphertextSize).
		add(FieldSatID, 4).
		add(FieldNonce, 4).
		add(FieldSignature, SignatureSize).
		add(FieldGlobalCRC, 4).
		build()

	t[KindTunnel] = newLayout(KindTunnel).
		pad(2).
		add(FieldBlockNonce, 8).
		add(FieldCmdCode, 2).
		add(FieldTTL, 2).
		add(FieldGroundSig, SignatureSize).
		add(FieldCRC32, 4).
		build()

	t[KindAck] = newLayout(KindAck).
		pad(2).
		add(FieldTargetTxID, 4).
		add(FieldStatus, 1).
		pad(1).
		add(FieldAzimuth, 2).
		add(FieldElevation, 2).
		add(FieldFrequency, 4).
		add(FieldDuration, 4).
		add(FieldEncTunnel, tunnelSize(tier)).
		pad(2).
		add(FieldCRC32, 4).
		build()

	t[KindReceipt] = newLayout(KindReceipt).
		pad(2).
		add(FieldExecTime, 8).
		add(FieldEncTxID, 8).
		add(FieldEncStatus, 1).
		pad(7).
		add(FieldSignature, SignatureSize).
		add(FieldCRC32, 4).
		pad(4).
		build()

	t[KindDelivery] = newLayout(KindDelivery).
		pad(2).
		add(FieldDownlinkTS, 8).
		add(FieldSatBID, 4).
		add(FieldPayload, ReceiptBodySize).
		add(FieldGlobalCRC, 4).
		pad(6).
		build()

	t[KindHeartbeat] = newLayout(KindHeartbeat).
		add(FieldEpochTS, 8).
		add(FieldVBattMV, 2).
		add(FieldTempC, 2).
		add(FieldPressurePa, 4).
		add(FieldSysState, 1).
		add(FieldSatLock, 1).
		add(FieldLatFixed, 4).
		add(FieldLonFixed, 4).
		pad(2).
		add(FieldGPSSpeedCMS, 2).
		add(FieldCRC32, 4).
		build()

	return t
}

// bodyWriter writes little-endian body fields through a layout.
type bodyWriter struct {
	buf []byte
	l   *layout
	err error
}

func (w *bodyWriter) slot(name string, size int) []byte {
	f := w.l.field(name)
	if f.Size != size {
		panic(fmt.Sprintf("packet: %s.%s is %d bytes, accessed as %d", w.l.kind, name, f.Size, size))
	}
	return w.buf[f.Offset : f.Offset+f.Size]
}

func (w *bodyWriter) u8(name string, v uint8) { w.slot(name, 1)[0] = v }
func (w *bodyWriter) u16(name string, v uint16) {
	binary.LittleEndian.PutUint16(w.slot(name, 2), v)
}

func (w *bodyWriter) u32(name string, v uint32) {
	binary.LittleEndian.PutUint32(w.slot(name, 4), v)
}

func (w *bodyWriter) u64(name string, v uint64) {
	binary.LittleEndian.PutUint64(w.slot(name, 8), v)
}

func (w *bodyWriter) f64s(name string, v []float64) {
	s := w.slot(name, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(s[i*8:], math.Float64bits(x))
	}
}

func (w *bodyWriter) f32s(name string, v []float32) {
	s := w.slot(name, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(s[i*4:], math.Float32bits(x))
	}
}

func (w *bodyWriter) bytes(name string, v []byte) {
	f := w.l.field(name)
	if len(v) != f.Size {
		if w.err == nil {
			w.err = oops.Wrapf(ErrStructuralMismatch, "%s.%s must be %d bytes, got %d", w.l.kind, name, f.Size, len(v))
		}
		return
	}
	copy(w.buf[f.Offset:f.Offset+f.Size], v)
}

func (w *bodyWriter) pads() {
	for _, f := range w.l.fields {
		if f.IsPad() {
			clear(w.buf[f.Offset : f.Offset+f.Size])
		}
	}
}

// bodyReader reads little-endian body fields through a layout.
type bodyReader struct {
	buf []byte
	l   *layout
}

func (r *bodyReader) slot(name string, size int) []byte {
	f := r.l.field(name)
	if f.Size != size {
		panic(fmt.Sprintf("packet: %s.%s is %d bytes, accessed as %d", r.l.kind, name, f.Size, size))
	}
	return r.buf[f.Offset : f.Offset+f.Size]
}

func (r *bodyReader) u8(name string) uint8 { return r.slot(name, 1)[0] }
func (r *bodyReader) u16(name string) uint16 {
	return binary.LittleEndian.Uint16(r.slot(name, 2))
}

func (r *bodyReader) u32(name string) uint32 {
	return binary.LittleEndian.Uint32(r.slot(name, 4))
}

func (r *bodyReader) u64(name string) uint64 {
	return binary.LittleEndian.Uint64(r.slot(name, 8))
}

func (r *bodyReader) f64s(name string, dst []float64) {
	s := r.slot(name, 8*len(dst))
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(s[i*8:]))
	}
}

func (r *bodyReader) f32s(name string, dst []float32) {
	s := r.slot(name, 4*len(dst))
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(s[i*4:]))
	}
}

func (r *bodyReader) bytes(name string, dst []byte) {
	copy(dst, r.slot(name, len(dst)))
}

// owned returns a fresh copy of a variable-size field.
func (r *bodyReader) owned(name string) []byte {
	f := r.l.field(name)
	out := make([]byte, f.Size)
	copy(out, r.buf[f.Offset:f.Offset+f.Size])
	return out
}

func (r *bodyReader) checkPads() error {
	for _, f := range r.l.fields {
		if f.IsPad() && !allZero(r.buf[f.Offset:f.Offset+f.Size]) {
			return oops.Wrapf(ErrStructuralMismatch, "%s: non-zero padding at body offset %d", r.l.kind, f.Offset)
		}
	}
	return nil
}
