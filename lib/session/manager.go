package session

import (
	"crypto/ed25519"
	"encoding/binary"
	"io"
	"sync"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// maxNonceAttempts bounds the search for an unused random payment nonce.
const maxNonceAttempts = 16

// Manager is the single owner of an endpoint's key material. All methods
// serialize on one mutex, so a wipe can never interleave with an encryption.
type Manager struct {
	mu sync.Mutex

	codec   *packet.Codec
	rand    io.Reader
	apid    uint16
	satID   uint32
	peerKey ed25519.PublicKey
	seq     uint16

	identity ed25519.PrivateKey
	ephPriv  [32]byte
	ephPub   [32]byte
	key      [32]byte

	state State
	start uint64
	ttl   uint64
	used  map[uint64]struct{}

	// lastHello holds the newest accepted initiator timestamp per APID. It
	// survives wipes.
	lastHello map[uint16]uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand replaces the entropy source used for ephemeral keys and nonces.
func WithRand(r io.Reader) Option {
	return func(m *Manager) { m.rand = r }
}

// WithAPID sets the APID stamped on outbound record headers.
func WithAPID(apid uint16) Option {
	return func(m *Manager) { m.apid = apid & packet.MaxAPID }
}

// WithSatID sets the sender id stamped on outbound payments.
func WithSatID(id uint32) Option {
	return func(m *Manager) { m.satID = id }
}

// WithPeerKey pins the identity key of the remote endpoint. Handshake
// responses and tunnel records are then checked against it.
func WithPeerKey(pub ed25519.PublicKey) Option {
	return func(m *Manager) { m.peerKey = append(ed25519.PublicKey(nil), pub...) }
}

// NewManager returns an Idle manager with no identity loaded.
func NewManager(codec *packet.Codec, opts ...Option) *Manager {
	m := &Manager{
		codec: codec,
		rand:  rand.Reader,
		state: StateIdle,
		used:  make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin loads the long-term identity from provisioned seed material.
// Callers must treat a failure as fatal: nothing else works without it.
func (m *Manager) Begin(material []byte) error {
	priv, err := DeriveIdentity(material)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity != nil {
		clear(m.identity)
	}
	m.identity = priv
	log.WithFields(logger.Fields{
		"at":          "Manager.Begin",
		"apid":        m.apid,
		"fingerprint": Fingerprint(priv.Public().(ed25519.PublicKey)),
	}).Debug("identity loaded")
	return nil
}

// SetPeerKey pins or replaces the remote identity key. A nil key disables
// peer verification.
func (m *Manager) SetPeerKey(pub ed25519.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerKey = append(ed25519.PublicKey(nil), pub...)
	if pub == nil {
		m.peerKey = nil
	}
}

// PrepareHandshake starts a new handshake and returns the signed Handshake
// record to send. It is valid in every state; from Active it re-keys.
func (m *Manager) PrepareHandshake(ttl uint16, now uint64) (*packet.Handshake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepareLocked(ttl, now)
}

func (m *Manager) prepareLocked(ttl uint16, now uint64) (*packet.Handshake, error) {
	if m.identity == nil {
		return nil, ErrIdentityNotLoaded
	}
	priv, pub, err := newEphemeral(m.rand)
	if err != nil {
		return nil, err
	}

	rec := &packet.Handshake{
		Header:     m.nextHeader(packet.KindHandshake),
		SessionTTL: ttl,
		Timestamp:  now,
		EphPubKey:  pub,
	}
	if err := m.sign(rec, rec.Signature[:]); err != nil {
		clear(priv[:])
		return nil, err
	}

	m.wipeLocked()
	m.ephPriv, m.ephPub = priv, pub
	clear(priv[:])
	m.state = StateHandshakeInit
	m.start = now
	m.ttl = uint64(ttl)

	log.WithFields(logger.Fields{
		"at":  "Manager.PrepareHandshake",
		"ttl": ttl,
		"now": now,
	}).Debug("handshake prepared")
	return rec, nil
}

// MarkSent records that the handshake left the transport and a response is
// now awaited.
func (m *Manager) MarkSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateHandshakeInit {
		m.state = StateHandshakeWait
	}
}

// ProcessHandshakeResponse completes a pending handshake with the peer's
// Handshake record. On failure the state is left as it was.
func (m *Manager) ProcessHandshakeResponse(rec *packet.Handshake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processLocked(rec)
}

func (m *Manager) processLocked(rec *packet.Handshake) error {
	if !m.state.pending() {
		return ErrNoPendingHandshake
	}
	if err := m.verifyPeer(rec, rec.Signature[:]); err != nil {
		log.WithFields(logger.Fields{
			"at":     "Manager.ProcessHandshakeResponse",
			"apid":   rec.Header.APID,
			"reason": "possible intrusion",
		}).WithError(err).Warn("handshake response rejected")
		return err
	}

	key, err := agree(m.ephPriv[:], rec.EphPubKey[:])
	if err != nil {
		log.WithFields(logger.Fields{
			"at":   "Manager.ProcessHandshakeResponse",
			"apid": rec.Header.APID,
		}).WithError(err).Warn("key agreement failed")
		return err
	}

	m.key = key
	clear(key[:])
	clear(m.ephPriv[:])
	clear(m.used)
	m.state = StateActive

	log.WithFields(logger.Fields{
		"at":          "Manager.ProcessHandshakeResponse",
		"session":     Fingerprint(m.key[:]),
		"ttl_seconds": m.ttl,
	}).Debug("session established")
	return nil
}

// Respond is the responder side of the handshake. It checks the
// initiator's record, agrees on a key with a one-shot ephemeral pair and
// returns the signed reply carrying the local ephemeral public key. The
// session adopts the initiator's TTL. An existing session survives any
// failure. A Locked manager refuses, and so does a handshake whose
// timestamp is not newer than the last one accepted from the same APID.
func (m *Manager) Respond(initiator *packet.Handshake, now uint64) (*packet.Handshake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respondLocked(m.peerKey, initiator, now)
}

// RespondTo is Respond with the initiator verified against peer. The key
// is pinned only when the handshake succeeds.
func (m *Manager) RespondTo(peer ed25519.PublicKey, initiator *packet.Handshake, now uint64) (*packet.Handshake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply, err := m.respondLocked(peer, initiator, now)
	if err != nil {
		return nil, err
	}
	m.peerKey = append(ed25519.PublicKey(nil), peer...)
	return reply, nil
}

func (m *Manager) respondLocked(peer ed25519.PublicKey, initiator *packet.Handshake, now uint64) (*packet.Handshake, error) {
	if m.identity == nil {
		return nil, ErrIdentityNotLoaded
	}
	if m.state == StateLocked {
		log.WithFields(logger.Fields{
			"at":   "Manager.Respond",
			"apid": initiator.Header.APID,
		}).Warn("handshake refused while locked")
		return nil, ErrSessionLocked
	}
	if err := m.verifyWith(peer, initiator, initiator.Signature[:]); err != nil {
		log.WithFields(logger.Fields{
			"at":     "Manager.Respond",
			"apid":   initiator.Header.APID,
			"reason": "possible intrusion",
		}).WithError(err).Warn("handshake rejected")
		return nil, err
	}
	apid := initiator.Header.APID
	if last, seen := m.lastHello[apid]; seen && initiator.Timestamp <= last {
		log.WithFields(logger.Fields{
			"at":        "Manager.Respond",
			"apid":      apid,
			"timestamp": initiator.Timestamp,
			"last":      last,
			"reason":    "possible intrusion",
		}).Warn("replayed handshake")
		return nil, oops.Wrapf(ErrStaleHandshake, "apid 0x%03x timestamp %d, last %d", apid, initiator.Timestamp, last)
	}

	priv, pub, err := newEphemeral(m.rand)
	if err != nil {
		return nil, err
	}
	defer clear(priv[:])
	key, err := agree(priv[:], initiator.EphPubKey[:])
	if err != nil {
		return nil, err
	}
	defer clear(key[:])

	reply := &packet.Handshake{
		Header:     m.nextHeader(packet.KindHandshake),
		SessionTTL: initiator.SessionTTL,
		Timestamp:  now,
		EphPubKey:  pub,
	}
	if err := m.sign(reply, reply.Signature[:]); err != nil {
		return nil, err
	}

	m.wipeLocked()
	m.key = key
	m.ephPub = pub
	m.start = now
	m.ttl = uint64(initiator.SessionTTL)
	m.state = StateActive
	if m.lastHello == nil {
		m.lastHello = make(map[uint16]uint64)
	}
	m.lastHello[apid] = initiator.Timestamp

	log.WithFields(logger.Fields{
		"at":          "Manager.Respond",
		"apid":        initiator.Header.APID,
		"session":     Fingerprint(m.key[:]),
		"ttl_seconds": m.ttl,
	}).Debug("session established")
	return reply, nil
}

// IsSessionActive reports whether a session key is usable at now. An
// expired session is wiped on the spot.
func (m *Manager) IsSessionActive(now uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(now)
}

func (m *Manager) activeLocked(now uint64) bool {
	if m.state != StateActive {
		return false
	}
	if now > m.start && now-m.start > m.ttl {
		log.WithFields(logger.Fields{
			"at":    "Manager.IsSessionActive",
			"start": m.start,
			"now":   now,
			"ttl":   m.ttl,
		}).Debug("session expired")
		m.wipeLocked()
		return false
	}
	return true
}

// EncryptAndSignPayment encrypts the body of an encoded Invoice record into
// out and signs it. Without an active session it returns false and leaves
// out untouched. The caller fills EpochTS and PosVec; header, SatID, Nonce,
// Signature and GlobalCRC are set here.
func (m *Manager) EncryptAndSignPayment(invoice []byte, out *packet.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return false, nil
	}
	body, err := m.codec.Body(invoice, packet.KindInvoice)
	if err != nil {
		return false, err
	}
	n, err := m.freshNonce()
	if err != nil {
		return false, err
	}

	p := *out
	p.Header = m.nextHeader(packet.KindPayment)
	p.SatID = m.satID
	p.Nonce = n
	if err := xorStream(&m.key, directionPayment, n, p.EncPayload[:], body); err != nil {
		return false, err
	}
	if err := m.sign(&p, p.Signature[:]); err != nil {
		return false, err
	}
	if _, err := m.codec.Seal(&p); err != nil {
		return false, err
	}

	m.used[nonceKey(directionPayment, n)] = struct{}{}
	*out = p
	return true, nil
}

// OpenPayment decrypts the payment ciphertext into out and returns the
// number of bytes written. Signature checks are the caller's job.
func (m *Manager) OpenPayment(rec *packet.Payment, now uint64, out []byte) (int, error) {
	if len(out) < packet.CiphertextSize {
		return 0, oops.Wrapf(ErrBufferTooSmall, "need %d bytes, have %d", packet.CiphertextSize, len(out))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked(now) {
		return 0, ErrNoActiveSession
	}
	if err := xorStream(&m.key, directionPayment, rec.Nonce, out[:packet.CiphertextSize], rec.EncPayload[:]); err != nil {
		return 0, err
	}
	return packet.CiphertextSize, nil
}

// EncryptTunnel signs and seals t, then encrypts the whole record for
// delivery inside an Ack. txID is the transaction the tunnel answers and
// selects the keystream.
func (m *Manager) EncryptTunnel(t *packet.TunnelData, txID uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return nil, ErrNoActiveSession
	}
	k := nonceKey(directionTunnel, txID)
	if _, ok := m.used[k]; ok {
		return nil, oops.Wrapf(ErrNonceReuse, "tunnel for tx %d already issued", txID)
	}

	t.Header = m.nextHeader(packet.KindTunnel)
	if err := m.sign(t, t.GroundSig[:]); err != nil {
		return nil, err
	}
	plain, err := m.codec.Seal(t)
	if err != nil {
		return nil, err
	}
	defer clear(plain)

	ct := make([]byte, len(plain))
	if err := xorStream(&m.key, directionTunnel, txID, ct, plain); err != nil {
		return nil, err
	}
	m.used[k] = struct{}{}
	return ct, nil
}

// DecryptTunnel reverses EncryptTunnel. The plaintext must be a well-formed
// Tunnel record with a correct checksum and, when a peer key is pinned, a
// valid ground signature.
func (m *Manager) DecryptTunnel(ciphertext []byte, txID uint32, out *packet.TunnelData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return ErrNoActiveSession
	}
	if len(ciphertext) != m.codec.Size(packet.KindTunnel) {
		return oops.Wrapf(ErrDecryptFailed, "tunnel ciphertext is %d bytes", len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	defer clear(plain)
	if err := xorStream(&m.key, directionTunnel, txID, plain, ciphertext); err != nil {
		return err
	}
	t, err := m.codec.DecodeTunnel(plain)
	if err != nil {
		return oops.Wrapf(ErrDecryptFailed, "%v", err)
	}
	if err := m.codec.VerifyCRC(plain, packet.KindTunnel); err != nil {
		return oops.Wrapf(ErrDecryptFailed, "%v", err)
	}
	if err := m.verifyPeer(t, t.GroundSig[:]); err != nil {
		return oops.Wrapf(ErrDecryptFailed, "%v", err)
	}
	*out = *t
	return nil
}

// SignReceipt stamps r with the canonical receipt header, signs it with the
// identity key and seals its checksum. A Delivery does not carry the receipt
// header, so the signature always covers sequence count 0; see
// packet.Codec.UnwrapReceipt. No session is needed.
func (m *Manager) SignReceipt(r *packet.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.Header = m.codec.NewHeader(packet.KindReceipt, m.apid)
	if err := m.sign(r, r.Signature[:]); err != nil {
		return err
	}
	_, err := m.codec.Seal(r)
	return err
}

// WipeSession zeroes the session key and any ephemeral scalar and returns
// to Idle. It is valid in every state.
func (m *Manager) WipeSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipeLocked()
}

// Lock wipes the session and parks the manager until the next
// PrepareHandshake. Respond refuses while locked.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipeLocked()
	m.state = StateLocked
	log.WithField("at", "Manager.Lock").Warn("session locked by operator")
}

func (m *Manager) wipeLocked() {
	clear(m.key[:])
	clear(m.ephPriv[:])
	clear(m.ephPub[:])
	clear(m.used)
	m.state = StateIdle
}

// State returns the current state without evaluating expiry.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PublicKey returns the identity public key, or nil before Begin.
func (m *Manager) PublicKey() ed25519.PublicKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), m.identity.Public().(ed25519.PublicKey)...)
}

// SessionKeyFingerprint returns a loggable tag of the session key, or an
// empty string when no session is active.
func (m *Manager) SessionKeyFingerprint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return ""
	}
	return Fingerprint(m.key[:])
}

// Codec returns the codec the manager encodes with.
func (m *Manager) Codec() *packet.Codec { return m.codec }

func (m *Manager) nextHeader(k packet.Kind) packet.Header {
	h := m.codec.NewHeader(k, m.apid)
	h.SeqCount = m.seq
	m.seq = (m.seq + 1) & packet.MaxSeqCount
	return h
}

// sign encodes rec and writes an identity signature over its signed prefix
// into sig, which must alias the record's signature field.
func (m *Manager) sign(rec packet.Record, sig []byte) error {
	if m.identity == nil {
		return ErrIdentityNotLoaded
	}
	prefix, ok := m.codec.SignedPrefix(rec.Kind())
	if !ok {
		return oops.Errorf("%s records are not signed", rec.Kind())
	}
	buf, err := m.codec.Encode(rec)
	if err != nil {
		return err
	}
	copy(sig, ed25519.Sign(m.identity, buf[:prefix]))
	return nil
}

// verifyPeer checks sig over the signed prefix of rec against the pinned
// peer key. Without a pinned key it accepts.
func (m *Manager) verifyPeer(rec packet.Record, sig []byte) error {
	return m.verifyWith(m.peerKey, rec, sig)
}

func (m *Manager) verifyWith(key ed25519.PublicKey, rec packet.Record, sig []byte) error {
	if key == nil {
		return nil
	}
	prefix, ok := m.codec.SignedPrefix(rec.Kind())
	if !ok {
		return oops.Errorf("%s records are not signed", rec.Kind())
	}
	buf, err := m.codec.Encode(rec)
	if err != nil {
		return oops.Wrapf(ErrAuthenticationFailed, "%v", err)
	}
	if !ed25519.Verify(key, buf[:prefix], sig) {
		return oops.Wrapf(ErrAuthenticationFailed, "%s signature does not match peer key", rec.Kind())
	}
	return nil
}

func (m *Manager) freshNonce() (uint32, error) {
	var b [4]byte
	for range maxNonceAttempts {
		if _, err := io.ReadFull(m.rand, b[:]); err != nil {
			return 0, oops.Errorf("read nonce: %w", err)
		}
		n := binary.LittleEndian.Uint32(b[:])
		if _, ok := m.used[nonceKey(directionPayment, n)]; !ok {
			return n, nil
		}
	}
	return 0, oops.Wrapf(ErrNonceReuse, "no fresh nonce after %d draws", maxNonceAttempts)
}

func nonceKey(direction, n uint32) uint64 {
	return uint64(direction)<<32 | uint64(n)
}
