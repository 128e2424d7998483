// Package bouncer is the admission point for inbound Payment records. A
// record is trusted only after it passes, in order: the structural and
// checksum check, the sender signature and replay check, decryption through
// the active session, and sanitization of the decrypted invoice.
package bouncer

import (
	"crypto/ed25519"
	"time"

	"github.com/go-i2p/go-void/lib/clock"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/go-void/lib/session"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// KeyLookup resolves a payment sender to its identity key.
type KeyLookup interface {
	BySatID(id uint32) (ed25519.PublicKey, bool)
}

// Opener decrypts payment ciphertext with the active session.
type Opener interface {
	OpenPayment(rec *packet.Payment, now uint64, out []byte) (int, error)
}

// Admission is the trusted result of Process.
type Admission struct {
	// EpochTS, SellerID, Amount and AssetID come from the decrypted invoice
	// and are what settlement receives.
	EpochTS  uint64
	SellerID uint32
	Amount   uint64
	AssetID  uint16

	// BuyerID and Nonce are the cleartext payment fields.
	BuyerID uint32
	Nonce   uint32

	// N is the number of plaintext bytes written to the output buffer.
	N int

	Payment *packet.Payment
	Invoice *packet.Invoice
}

// Bouncer validates inbound payments. It is safe for concurrent use as long
// as its KeyLookup and Opener are.
type Bouncer struct {
	codec  *packet.Codec
	keys   KeyLookup
	opener Opener
	clock  clock.Clock
	policy Policy
	assets map[uint16]struct{}
	replay *ReplayCache
}

// Option configures a Bouncer.
type Option func(*Bouncer)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(b *Bouncer) { b.clock = c }
}

// New returns a Bouncer enforcing policy.
func New(codec *packet.Codec, keys KeyLookup, opener Opener, policy Policy, opts ...Option) *Bouncer {
	b := &Bouncer{
		codec:  codec,
		keys:   keys,
		opener: opener,
		clock:  clock.System{},
		policy: policy,
		assets: make(map[uint16]struct{}, len(policy.AllowedAssets)),
		replay: NewReplayCache(policy.ReplayWindow),
	}
	for _, a := range policy.AllowedAssets {
		b.assets[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Process runs buf through every admission stage and decrypts the invoice
// into out. On any failure out holds no plaintext. The (sat_id, nonce) pair
// is burned only once the payment is admitted.
func (b *Bouncer) Process(buf, out []byte) (*Admission, error) {
	p, err := b.structural(buf)
	if err != nil {
		return nil, err
	}

	now := b.clock.Now()
	if err := b.authenticate(buf, p, now); err != nil {
		return nil, err
	}

	if len(out) < packet.CiphertextSize {
		return nil, oops.Wrapf(session.ErrBufferTooSmall, "need %d bytes, have %d", packet.CiphertextSize, len(out))
	}
	n, err := b.opener.OpenPayment(p, clock.EpochSeconds(b.clock), out)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "decrypt",
			"sat_id": p.SatID,
		}).WithError(err).Debug("payment dropped")
		return nil, err
	}

	inv, err := b.decodeInvoice(out[:n])
	if err == nil {
		err = b.sanitize(inv, now)
	}
	if err != nil {
		clear(out[:n])
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "sanitize",
			"sat_id": p.SatID,
		}).WithError(err).Warn("payment dropped")
		return nil, err
	}

	if b.replay.CheckAndAdd(p.SatID, p.Nonce, now) {
		clear(out[:n])
		return nil, b.replayed(p)
	}

	log.WithFields(logger.Fields{
		"at":        "Bouncer.Process",
		"sat_id":    p.SatID,
		"seller_id": inv.SatID,
		"amount":    inv.Amount,
		"asset_id":  inv.AssetID,
	}).Debug("payment admitted")

	return &Admission{
		EpochTS:  inv.EpochTS,
		SellerID: inv.SatID,
		Amount:   inv.Amount,
		AssetID:  inv.AssetID,
		BuyerID:  p.SatID,
		Nonce:    p.Nonce,
		N:        n,
		Payment:  p,
		Invoice:  inv,
	}, nil
}

func (b *Bouncer) structural(buf []byte) (*packet.Payment, error) {
	p, err := b.codec.DecodePayment(buf)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "structural",
			"length": len(buf),
		}).WithError(err).Warn("payment dropped")
		return nil, err
	}
	if err := b.codec.VerifyCRC(buf, packet.KindPayment); err != nil {
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "checksum",
			"sat_id": p.SatID,
		}).WithError(err).Warn("payment dropped")
		return nil, err
	}
	return p, nil
}

func (b *Bouncer) authenticate(buf []byte, p *packet.Payment, now time.Time) error {
	pub, ok := b.keys.BySatID(p.SatID)
	if !ok {
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "signature",
			"sat_id": p.SatID,
			"reason": "possible intrusion",
		}).Warn("payment from unknown sender")
		return oops.Wrapf(ErrUnknownSender, "sat_id 0x%x", p.SatID)
	}

	prefix, _ := b.codec.SignedPrefix(packet.KindPayment)
	if !ed25519.Verify(pub, buf[:prefix], p.Signature[:]) {
		log.WithFields(logger.Fields{
			"at":     "Bouncer.Process",
			"stage":  "signature",
			"sat_id": p.SatID,
			"reason": "possible intrusion",
		}).Warn("payment signature invalid")
		return oops.Wrapf(session.ErrAuthenticationFailed, "payment from sat_id 0x%x", p.SatID)
	}

	if b.replay.Seen(p.SatID, p.Nonce, now) {
		return b.replayed(p)
	}
	return nil
}

func (b *Bouncer) replayed(p *packet.Payment) error {
	log.WithFields(logger.Fields{
		"at":     "Bouncer.Process",
		"stage":  "replay",
		"sat_id": p.SatID,
		"nonce":  p.Nonce,
		"reason": "possible intrusion",
	}).Warn("replayed payment")
	return oops.Wrapf(ErrReplay, "sat_id 0x%x nonce 0x%08x", p.SatID, p.Nonce)
}

func (b *Bouncer) decodeInvoice(plain []byte) (*packet.Invoice, error) {
	rec, err := b.codec.DecodeBody(plain, packet.KindInvoice)
	if err != nil {
		return nil, oops.Wrapf(ErrSanitizationFailed, "%v", err)
	}
	return rec.(*packet.Invoice), nil
}
