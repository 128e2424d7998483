package bridge

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/go-void/lib/bouncer"
	"github.com/go-i2p/go-void/lib/clock"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/go-void/lib/session"
	"github.com/go-i2p/go-void/lib/settlement"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// maxFrameLen bounds one modem line. The largest record is well under 1 KiB
// of hex.
const maxFrameLen = 4096

// Session is the part of session.Manager the bridge drives.
type Session interface {
	RespondTo(peer ed25519.PublicKey, initiator *packet.Handshake, now uint64) (*packet.Handshake, error)
	EncryptTunnel(t *packet.TunnelData, txID uint32) ([]byte, error)
}

// Admitter runs inbound payments through the edge validator.
type Admitter interface {
	Process(buf, out []byte) (*bouncer.Admission, error)
}

// KeyLookup resolves the identity key of a sending role.
type KeyLookup interface {
	ByAPID(apid uint16) (ed25519.PublicKey, bool)
}

// Config holds the bridge tunables.
type Config struct {
	// Rate is the sustained inbound frame rate in frames per second.
	// Zero or less disables limiting.
	Rate  float64
	Burst int
	// TunnelTTL is the unlock window in seconds granted by each tunnel.
	TunnelTTL uint16
	// Relay is copied into every Ack.
	Relay packet.RelayOps
	// MaxReceipts caps the receipt store. Zero or less selects
	// DefaultMaxReceipts.
	MaxReceipts int
	// MaxSkew bounds how far a handshake timestamp may sit from the bridge
	// clock. Zero or less selects DefaultHandshakeSkew.
	MaxSkew time.Duration
}

// DefaultHandshakeSkew is the handshake freshness window.
const DefaultHandshakeSkew = 5 * time.Minute

// DefaultConfig returns the tunables used by the ground command.
func DefaultConfig() Config {
	return Config{
		Rate:        10,
		Burst:       20,
		TunnelTTL:   packet.DefaultSessionTTL,
		Relay:       packet.RelayOps{Duration: 5000},
		MaxSkew:     DefaultHandshakeSkew,
		MaxReceipts: DefaultMaxReceipts,
	}
}

// Stats counts frames by outcome.
type Stats struct {
	Handshakes uint64
	Invoices   uint64
	Admitted   uint64
	Dropped    uint64
	Settled    uint64
	Failed     uint64
	Receipts   uint64
}

// Bridge dispatches modem frames to the session, the Bouncer and the
// settlement sink, and writes replies back to the modem.
type Bridge struct {
	codec    *packet.Codec
	sess     Session
	admit    Admitter
	keys     KeyLookup
	sink     settlement.Sink
	clock    clock.Clock
	cfg      Config
	limiter  *rate.Limiter
	receipts ReceiptStore

	wmu sync.Mutex
	out io.Writer

	nextTx atomic.Uint32

	handshakes, invoices, admitted, dropped atomic.Uint64
	settled, failed, stored                 atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// New wires a bridge. out receives every reply frame.
func New(codec *packet.Codec, sess Session, admit Admitter, keys KeyLookup, sink settlement.Sink, out io.Writer, cfg Config, opts ...Option) *Bridge {
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultHandshakeSkew
	}
	b := &Bridge{
		codec:   codec,
		sess:    sess,
		admit:   admit,
		keys:    keys,
		sink:    sink,
		clock:   clock.System{},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		out:     out,
	}
	b.receipts.max = cfg.MaxReceipts
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run reads frames from r until EOF or ctx is done. A bad frame is logged
// and skipped; only read errors and cancellation end the loop.
func (b *Bridge) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), maxFrameLen)

	for sc.Scan() {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		line := sc.Text()
		if len(line) == 0 {
			continue
		}
		if err := b.HandleLine(ctx, line); err != nil {
			entry := log.WithFields(logger.Fields{"at": "Bridge.Run"}).WithError(err)
			if errors.Is(err, ErrUnknownFrame) {
				entry.Debug("ignoring modem line")
			} else {
				entry.Warn("frame dropped")
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return oops.Errorf("modem read failed: %w", err)
	}
	return nil
}

// HandleLine processes one modem line.
func (b *Bridge) HandleLine(ctx context.Context, line string) error {
	tag, payload, err := ParseFrame(line)
	if err != nil {
		return err
	}
	switch tag {
	case TagHandshake:
		return b.handleHandshake(payload)
	case TagInvoice:
		return b.handleInvoice(payload)
	case TagPayment:
		return b.handlePayment(ctx, payload)
	case TagDelivery:
		return b.handleDelivery(payload)
	}
	return ErrUnknownFrame
}

// TriggerHandshake asks the satellite to start a handshake.
func (b *Bridge) TriggerHandshake() error {
	return b.write(CmdTriggerHandshake + "\n")
}

// ApproveBuy approves the invoice the satellite is holding.
func (b *Bridge) ApproveBuy() error {
	return b.write(CmdApproveBuy + "\n")
}

// Receipts returns the verified receipt store.
func (b *Bridge) Receipts() *ReceiptStore { return &b.receipts }

// Stats returns a snapshot of the frame counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Handshakes: b.handshakes.Load(),
		Invoices:   b.invoices.Load(),
		Admitted:   b.admitted.Load(),
		Dropped:    b.dropped.Load(),
		Settled:    b.settled.Load(),
		Failed:     b.failed.Load(),
		Receipts:   b.stored.Load(),
	}
}

func (b *Bridge) handleHandshake(buf []byte) error {
	h, err := b.codec.DecodeHandshake(buf)
	if err != nil {
		return err
	}
	pub, ok := b.keys.ByAPID(h.Header.APID)
	if !ok {
		log.WithFields(logger.Fields{
			"at":     "Bridge.handleHandshake",
			"apid":   h.Header.APID,
			"reason": "possible intrusion",
		}).Warn("handshake from unknown apid")
		return oops.Wrapf(session.ErrAuthenticationFailed, "no trusted key for apid 0x%03x", h.Header.APID)
	}
	if err := clock.ValidateSkew(h.Timestamp, b.clock.Now(), b.cfg.MaxSkew); err != nil {
		log.WithFields(logger.Fields{
			"at":        "Bridge.handleHandshake",
			"apid":      h.Header.APID,
			"timestamp": h.Timestamp,
			"reason":    "possible intrusion",
		}).WithError(err).Warn("stale handshake")
		return oops.Wrapf(session.ErrAuthenticationFailed, "handshake freshness: %v", err)
	}

	reply, err := b.sess.RespondTo(pub, h, clock.EpochSeconds(b.clock))
	if err != nil {
		return err
	}
	out, err := b.codec.Encode(reply)
	if err != nil {
		return err
	}
	b.handshakes.Add(1)
	return b.write(FormatFrame(TagHandshakeAck, out))
}

func (b *Bridge) handleInvoice(buf []byte) error {
	inv, err := b.codec.DecodeInvoice(buf)
	if err != nil {
		return err
	}
	if err := b.codec.VerifyCRC(buf, packet.KindInvoice); err != nil {
		return err
	}
	b.invoices.Add(1)
	log.WithFields(logger.Fields{
		"at":       "Bridge.handleInvoice",
		"sat_id":   inv.SatID,
		"amount":   inv.Amount,
		"asset_id": inv.AssetID,
	}).Info("invoice received, awaiting operator approval")
	return nil
}

func (b *Bridge) handlePayment(ctx context.Context, buf []byte) error {
	var plain [packet.CiphertextSize]byte
	defer clear(plain[:])

	adm, err := b.admit.Process(buf, plain[:])
	if err != nil {
		b.dropped.Add(1)
		return err
	}
	b.admitted.Add(1)

	txID := b.nextTx.Add(1)
	ack := &packet.Ack{
		Header:     b.codec.NewHeader(packet.KindAck, packet.APIDGround),
		TargetTxID: txID,
		Relay:      b.cfg.Relay,
	}

	conf, serr := b.sink.Ingest(ctx, settlement.FromAdmission(adm))
	if serr != nil {
		b.failed.Add(1)
		ack.Status = packet.StatusRejected
		ack.EncTunnel = make([]byte, b.codec.Size(packet.KindTunnel))
	} else {
		tunnel := &packet.TunnelData{
			BlockNonce: conf.BlockNonce,
			CmdCode:    packet.CmdUnlock,
			TTL:        b.cfg.TunnelTTL,
		}
		ct, err := b.sess.EncryptTunnel(tunnel, txID)
		if err != nil {
			b.failed.Add(1)
			return oops.Wrapf(err, "tunnel for tx %d", txID)
		}
		b.settled.Add(1)
		ack.Status = packet.StatusSettled
		ack.EncTunnel = ct
	}

	out, err := b.codec.Seal(ack)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"at":        "Bridge.handlePayment",
		"tx_id":     txID,
		"seller_id": adm.SellerID,
		"buyer_id":  adm.BuyerID,
		"amount":    adm.Amount,
		"status":    ack.Status,
	}).Info("ack downlinked")
	if err := b.write(FormatFrame(TagAckDownlink, out)); err != nil {
		return err
	}
	if serr != nil {
		return oops.Wrapf(serr, "settlement for tx %d", txID)
	}
	return nil
}

func (b *Bridge) handleDelivery(buf []byte) error {
	d, err := b.codec.DecodeDelivery(buf)
	if err != nil {
		return err
	}
	if err := b.codec.VerifyCRC(buf, packet.KindDelivery); err != nil {
		return err
	}
	rcpt, err := b.codec.UnwrapReceipt(d, packet.APIDSeller)
	if err != nil {
		return err
	}
	if err := b.verifyReceipt(rcpt); err != nil {
		log.WithFields(logger.Fields{
			"at":       "Bridge.handleDelivery",
			"sat_b_id": d.SatBID,
			"reason":   "possible intrusion",
		}).WithError(err).Warn("receipt rejected")
		return err
	}

	n := b.receipts.add(StoredReceipt{Delivery: d, Receipt: rcpt})
	b.stored.Add(1)
	log.WithFields(logger.Fields{
		"at":        "Bridge.handleDelivery",
		"tx_id":     rcpt.EncTxID,
		"exec_time": rcpt.ExecTime,
		"total":     n,
	}).Info("receipt stored")
	return nil
}

// verifyReceipt checks the seller signature and checksum of a receipt
// rebuilt from a Delivery.
func (b *Bridge) verifyReceipt(r *packet.Receipt) error {
	pub, ok := b.keys.ByAPID(packet.APIDSeller)
	if !ok {
		return oops.Wrapf(session.ErrAuthenticationFailed, "no trusted key for seller apid")
	}
	buf, err := b.codec.Encode(r)
	if err != nil {
		return err
	}
	prefix, _ := b.codec.SignedPrefix(packet.KindReceipt)
	if !ed25519.Verify(pub, buf[:prefix], r.Signature[:]) {
		return oops.Wrapf(session.ErrAuthenticationFailed, "receipt signature")
	}
	return b.codec.VerifyCRC(buf, packet.KindReceipt)
}

func (b *Bridge) write(s string) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := io.WriteString(b.out, s); err != nil {
		return oops.Errorf("modem write failed: %w", err)
	}
	return nil
}

// String summarizes the counters for shutdown logs.
func (s Stats) String() string {
	return fmt.Sprintf("handshakes=%d invoices=%d admitted=%d dropped=%d settled=%d failed=%d receipts=%d",
		s.Handshakes, s.Invoices, s.Admitted, s.Dropped, s.Settled, s.Failed, s.Receipts)
}
