// Package sample builds a complete, internally consistent set of records
// for one tier: a handshake between Sat B and the ground, an invoice from
// Sat A, the matching payment, the settlement Ack with its tunnel, the
// execution receipt, its delivery and a heartbeat.
//
// Identities are derived from fixed labels, so two runs with the same
// clock and entropy produce the same bytes.
package sample

import (
	"io"
	"time"

	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/go-void/lib/session"
	"github.com/samber/oops"
)

// Well-known sample identities.
const (
	SellerSatID uint32 = 0xA1A1
	BuyerSatID  uint32 = 0xB2B2
	TxID        uint32 = 0x12345678
)

// Record is one generated record.
type Record struct {
	Name  string
	Kind  packet.Kind
	Bytes []byte
}

// Set is the output of Generate together with the endpoints that produced
// it, so callers can check signatures and decrypt.
type Set struct {
	Records []Record
	Ground  *session.Manager
	Buyer   *session.Manager
	Seller  *session.Manager
}

// Generate builds the sample set for tier at now. entropy feeds ephemeral
// keys and nonces; nil selects the system source.
func Generate(tier packet.Tier, now time.Time, entropy io.Reader) (*Set, error) {
	c := packet.NewCodec(tier)
	ts := uint64(now.Unix())

	opts := func(o ...session.Option) []session.Option {
		if entropy != nil {
			o = append(o, session.WithRand(entropy))
		}
		return o
	}
	ground := session.NewManager(c, opts(session.WithAPID(packet.APIDGround))...)
	buyer := session.NewManager(c, opts(session.WithAPID(packet.APIDBuyer), session.WithSatID(BuyerSatID))...)
	seller := session.NewManager(c, opts(session.WithAPID(packet.APIDSeller), session.WithSatID(SellerSatID))...)
	for m, label := range map[*session.Manager]string{ground: "void-ground", buyer: "void-sat-b", seller: "void-sat-a"} {
		if err := m.Begin([]byte(label)); err != nil {
			return nil, err
		}
	}
	buyer.SetPeerKey(ground.PublicKey())
	ground.SetPeerKey(buyer.PublicKey())

	s := &Set{Ground: ground, Buyer: buyer, Seller: seller}
	add := func(name string, rec packet.Record, seal bool) error {
		var buf []byte
		var err error
		if seal {
			buf, err = c.Seal(rec)
		} else {
			buf, err = c.Encode(rec)
		}
		if err != nil {
			return oops.Wrapf(err, "sample %s", name)
		}
		s.Records = append(s.Records, Record{Name: name, Kind: rec.Kind(), Bytes: buf})
		return nil
	}

	hello, err := buyer.PrepareHandshake(packet.DefaultSessionTTL, ts)
	if err != nil {
		return nil, err
	}
	if err := add("packet_h_handshake", hello, false); err != nil {
		return nil, err
	}
	buyer.MarkSent()
	reply, err := ground.Respond(hello, ts)
	if err != nil {
		return nil, err
	}
	if err := buyer.ProcessHandshakeResponse(reply); err != nil {
		return nil, err
	}

	inv := &packet.Invoice{
		Header:  c.NewHeader(packet.KindInvoice, packet.APIDSeller),
		EpochTS: ts,
		PosVec:  [3]float64{6878.137, -1203.5, 402.25},
		VelVec:  [3]float32{1.25, 7.5, -0.125},
		SatID:   SellerSatID,
		Amount:  2500,
		AssetID: 1,
	}
	if err := add("packet_a_invoice", inv, true); err != nil {
		return nil, err
	}

	pay := packet.Payment{EpochTS: ts, PosVec: [3]float64{6880.5, -1190.25, 398}}
	ok, err := buyer.EncryptAndSignPayment(s.Records[len(s.Records)-1].Bytes, &pay)
	if err != nil {
		return nil, oops.Wrapf(err, "sample payment")
	}
	if !ok {
		return nil, oops.Wrapf(session.ErrNoActiveSession, "sample payment")
	}
	if err := add("packet_b_payment", &pay, false); err != nil {
		return nil, err
	}

	tunnel := &packet.TunnelData{BlockNonce: 0x1122334455667788, CmdCode: packet.CmdUnlock, TTL: packet.DefaultSessionTTL}
	ct, err := ground.EncryptTunnel(tunnel, TxID)
	if err != nil {
		return nil, err
	}
	ack := &packet.Ack{
		Header:     c.NewHeader(packet.KindAck, packet.APIDGround),
		TargetTxID: TxID,
		Status:     packet.StatusSettled,
		Relay:      packet.RelayOps{Azimuth: 180, Elevation: 45, Frequency: 437_200_000, Duration: 5000},
		EncTunnel:  ct,
	}
	if err := add("packet_ack_command", ack, true); err != nil {
		return nil, err
	}

	rcpt := &packet.Receipt{ExecTime: ts + 30, EncTxID: uint64(TxID), EncStatus: 1}
	if err := seller.SignReceipt(rcpt); err != nil {
		return nil, err
	}
	if err := add("packet_c_receipt", rcpt, false); err != nil {
		return nil, err
	}

	d := &packet.Delivery{
		Header:     c.NewHeader(packet.KindDelivery, packet.APIDSeller),
		DownlinkTS: ts + 60,
		SatBID:     BuyerSatID,
	}
	if err := c.WrapReceipt(rcpt, d); err != nil {
		return nil, err
	}
	if err := add("packet_d_delivery", d, true); err != nil {
		return nil, err
	}

	hb := &packet.Heartbeat{
		Header:      c.NewHeader(packet.KindHeartbeat, packet.APIDBuyer),
		EpochTS:     ts,
		VBattMV:     3700,
		TempC:       -1250,
		PressurePa:  101325,
		SysState:    1,
		SatLock:     8,
		LatFixed:    377749000,
		LonFixed:    -1224194000,
		GPSSpeedCMS: 750,
	}
	if err := add("packet_l_heartbeat", hb, true); err != nil {
		return nil, err
	}
	return s, nil
}
