package packet

// Record is implemented by every fixed-size record type in this package.
type Record interface {
	// Kind returns the layout the record is encoded with.
	Kind() Kind
	// RecordHeader returns a pointer to the record's primary header.
	RecordHeader() *Header

	marshalBody(w *bodyWriter)
	unmarshalBody(r *bodyReader)
}

// newRecord returns a zero record of the given kind.
func newRecord(k Kind) (Record, bool) {
	switch k {
	case KindHandshake:
		return &Handshake{}, true
	case KindInvoice:
		return &Invoice{}, true
	case KindPayment:
		return &Payment{}, true
	case KindTunnel:
		return &TunnelData{}, true
	case KindAck:
		return &Ack{}, true
	case KindReceipt:
		return &Receipt{}, true
	case KindDelivery:
		return &Delivery{}, true
	case KindHeartbeat:
		return &Heartbeat{}, true
	default:
		return nil, false
	}
}
