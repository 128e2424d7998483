package session

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/go-i2p/go-void/lib/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	satSeed    = "sat-b-test-seed"
	groundSeed = "ground-test-seed"
	satID      = uint32(0xB2B2)
)

// constReader yields the same byte forever.
type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

func wire(t *testing.T, c *packet.Codec, h *packet.Handshake) *packet.Handshake {
	t.Helper()
	buf, err := c.Encode(h)
	require.NoError(t, err)
	got, err := c.DecodeHandshake(buf)
	require.NoError(t, err)
	return got
}

// establish runs a full handshake between a buyer and the ground with both
// identities pinned.
func establish(t *testing.T, c *packet.Codec, ttl uint16, now uint64) (sat, ground *Manager) {
	t.Helper()
	ground = NewManager(c, WithAPID(packet.APIDGround))
	require.NoError(t, ground.Begin([]byte(groundSeed)))

	sat = NewManager(c, WithAPID(packet.APIDBuyer), WithSatID(satID), WithPeerKey(ground.PublicKey()))
	require.NoError(t, sat.Begin([]byte(satSeed)))
	ground.SetPeerKey(sat.PublicKey())

	hello, err := sat.PrepareHandshake(ttl, now)
	require.NoError(t, err)
	sat.MarkSent()

	reply, err := ground.Respond(wire(t, c, hello), now)
	require.NoError(t, err)
	require.NoError(t, sat.ProcessHandshakeResponse(wire(t, c, reply)))
	return sat, ground
}

func sampleInvoice(t *testing.T, c *packet.Codec) []byte {
	t.Helper()
	inv := &packet.Invoice{
		Header:  c.NewHeader(packet.KindInvoice, packet.APIDSeller),
		EpochTS: 1_700_000_000,
		PosVec:  [3]float64{6878.1, 0.5, -12},
		VelVec:  [3]float32{7.6, 0, 0},
		SatID:   0xA1A1,
		Amount:  5000,
		AssetID: 1,
	}
	buf, err := c.Seal(inv)
	require.NoError(t, err)
	return buf
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestBegin_DeterministicIdentity(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	a := NewManager(c)
	b := NewManager(c)
	require.NoError(t, a.Begin([]byte(satSeed)))
	require.NoError(t, b.Begin([]byte(satSeed)))
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	other := NewManager(c)
	require.NoError(t, other.Begin([]byte(groundSeed)))
	assert.NotEqual(t, a.PublicKey(), other.PublicKey())
}

func TestBegin_EmptySeed(t *testing.T) {
	m := NewManager(packet.NewCodec(packet.TierEnterprise))
	assert.ErrorIs(t, m.Begin(nil), ErrIdentityNotLoaded)
	assert.Nil(t, m.PublicKey())
}

func TestPrepareHandshake_RequiresIdentity(t *testing.T) {
	m := NewManager(packet.NewCodec(packet.TierEnterprise))
	_, err := m.PrepareHandshake(10, 100)
	assert.ErrorIs(t, err, ErrIdentityNotLoaded)
	assert.Equal(t, StateIdle, m.State())
}

// =============================================================================
// Handshake Tests
// =============================================================================

func TestPrepareHandshake_SignsPrefix(t *testing.T) {
	for _, tier := range []packet.Tier{packet.TierEnterprise, packet.TierCommunity} {
		c := packet.NewCodec(tier)
		m := NewManager(c, WithAPID(packet.APIDBuyer))
		require.NoError(t, m.Begin([]byte(satSeed)))

		h, err := m.PrepareHandshake(600, 1234)
		require.NoError(t, err)
		assert.Equal(t, StateHandshakeInit, m.State())
		assert.Equal(t, uint16(600), h.SessionTTL)
		assert.Equal(t, uint64(1234), h.Timestamp)
		assert.Equal(t, packet.APIDBuyer, h.Header.APID)

		buf, err := c.Encode(h)
		require.NoError(t, err)
		prefix, _ := c.SignedPrefix(packet.KindHandshake)
		assert.True(t, ed25519.Verify(m.PublicKey(), buf[:prefix], h.Signature[:]), tier.String())
	}
}

func TestHandshake_BothSidesAgree(t *testing.T) {
	for _, tier := range []packet.Tier{packet.TierEnterprise, packet.TierCommunity} {
		c := packet.NewCodec(tier)
		sat, ground := establish(t, c, 600, 1000)

		assert.Equal(t, StateActive, sat.State())
		assert.Equal(t, StateActive, ground.State())
		assert.Equal(t, sat.key, ground.key)
		assert.NotEqual(t, [32]byte{}, sat.key)
		assert.Equal(t, sat.SessionKeyFingerprint(), ground.SessionKeyFingerprint())
		assert.Len(t, sat.SessionKeyFingerprint(), 8)
	}
}

func TestHandshake_ExpiryScenario(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 10, 100)

	require.Equal(t, StateActive, sat.State())
	assert.True(t, sat.IsSessionActive(109))
	assert.True(t, sat.IsSessionActive(110))
	assert.False(t, sat.IsSessionActive(111))
	assert.Equal(t, StateIdle, sat.State())
	assert.Equal(t, [32]byte{}, sat.key)
	assert.False(t, sat.IsSessionActive(109))
}

func TestIsSessionActive_FalseBeforeResponse(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	m := NewManager(c)
	require.NoError(t, m.Begin([]byte(satSeed)))
	assert.False(t, m.IsSessionActive(0))

	_, err := m.PrepareHandshake(10, 100)
	require.NoError(t, err)
	for _, now := range []uint64{0, 100, 105, 200} {
		assert.False(t, m.IsSessionActive(now))
	}
	assert.Equal(t, StateHandshakeInit, m.State())
}

func TestProcessHandshakeResponse_ZeroesEphemeral(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 60, 5)
	assert.Equal(t, [32]byte{}, sat.ephPriv)
}

func TestWipeSession_ZeroesKey(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 60, 5)
	require.NotEqual(t, [32]byte{}, sat.key)

	sat.WipeSession()
	assert.Equal(t, [32]byte{}, sat.key)
	assert.Equal(t, [32]byte{}, sat.ephPriv)
	assert.Equal(t, StateIdle, sat.State())
	assert.Empty(t, sat.SessionKeyFingerprint())

	// idempotent from any state
	sat.WipeSession()
	assert.Equal(t, StateIdle, sat.State())
}

func TestProcessHandshakeResponse_DegeneratePeerKey(t *testing.T) {
	lowOrder := [][32]byte{
		{},
		{1},
	}

	for i, pub := range lowOrder {
		c := packet.NewCodec(packet.TierEnterprise)
		m := NewManager(c)
		require.NoError(t, m.Begin([]byte(satSeed)))
		_, err := m.PrepareHandshake(10, 100)
		require.NoError(t, err)
		eph := m.ephPriv

		err = m.ProcessHandshakeResponse(&packet.Handshake{EphPubKey: pub})
		assert.ErrorIs(t, err, ErrKeyAgreementFailed, "case %d", i)
		assert.Equal(t, StateHandshakeInit, m.State())
		assert.Equal(t, eph, m.ephPriv)
		assert.Equal(t, [32]byte{}, m.key)
	}
}

func TestProcessHandshakeResponse_NoPendingHandshake(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	m := NewManager(c)
	require.NoError(t, m.Begin([]byte(satSeed)))

	err := m.ProcessHandshakeResponse(&packet.Handshake{EphPubKey: [32]byte{9}})
	assert.ErrorIs(t, err, ErrNoPendingHandshake)
	assert.Equal(t, StateIdle, m.State())
}

func TestProcessHandshakeResponse_WrongPeerSignature(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	impostor := NewManager(c)
	require.NoError(t, impostor.Begin([]byte("impostor")))
	ground := NewManager(c)
	require.NoError(t, ground.Begin([]byte(groundSeed)))

	sat := NewManager(c, WithPeerKey(ground.PublicKey()))
	require.NoError(t, sat.Begin([]byte(satSeed)))
	hello, err := sat.PrepareHandshake(60, 10)
	require.NoError(t, err)

	forged, err := impostor.Respond(hello, 10)
	require.NoError(t, err)

	err = sat.ProcessHandshakeResponse(forged)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, StateHandshakeInit, sat.State())
}

func TestRespond_RejectsUnknownInitiatorAndKeepsSession(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	_, ground := establish(t, c, 60, 10)
	before := ground.key

	stranger := NewManager(c)
	require.NoError(t, stranger.Begin([]byte("stranger")))
	hello, err := stranger.PrepareHandshake(60, 11)
	require.NoError(t, err)

	_, err = ground.Respond(hello, 11)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, StateActive, ground.State())
	assert.Equal(t, before, ground.key)
}

func TestRespond_RejectsReplayedHandshake(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	ground := NewManager(c, WithAPID(packet.APIDGround))
	require.NoError(t, ground.Begin([]byte(groundSeed)))
	sat := NewManager(c, WithAPID(packet.APIDBuyer), WithSatID(satID), WithPeerKey(ground.PublicKey()))
	require.NoError(t, sat.Begin([]byte(satSeed)))
	ground.SetPeerKey(sat.PublicKey())

	hello, err := sat.PrepareHandshake(60, 10)
	require.NoError(t, err)
	captured := wire(t, c, hello)
	reply, err := ground.Respond(captured, 10)
	require.NoError(t, err)
	require.NoError(t, sat.ProcessHandshakeResponse(reply))
	before := ground.SessionKeyFingerprint()
	require.Equal(t, sat.SessionKeyFingerprint(), before)

	_, err = ground.Respond(captured, 12)
	assert.ErrorIs(t, err, ErrStaleHandshake)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, before, ground.SessionKeyFingerprint())

	// a wipe does not reopen the window
	ground.WipeSession()
	_, err = ground.Respond(captured, 13)
	assert.ErrorIs(t, err, ErrStaleHandshake)

	hello, err = sat.PrepareHandshake(60, 14)
	require.NoError(t, err)
	reply, err = ground.Respond(wire(t, c, hello), 14)
	require.NoError(t, err)
	require.NoError(t, sat.ProcessHandshakeResponse(reply))
	assert.Equal(t, sat.SessionKeyFingerprint(), ground.SessionKeyFingerprint())
}

func TestRespond_RefusedWhileLocked(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, ground := establish(t, c, 60, 10)

	ground.Lock()
	hello, err := sat.PrepareHandshake(60, 20)
	require.NoError(t, err)

	_, err = ground.Respond(wire(t, c, hello), 20)
	assert.ErrorIs(t, err, ErrSessionLocked)
	assert.Equal(t, StateLocked, ground.State())
	assert.Equal(t, [32]byte{}, ground.key)

	_, err = ground.RespondTo(sat.PublicKey(), wire(t, c, hello), 20)
	assert.ErrorIs(t, err, ErrSessionLocked)
	assert.Equal(t, StateLocked, ground.State())
}

func TestRespondTo_PinsKeyOnlyOnSuccess(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	ground := NewManager(c, WithAPID(packet.APIDGround))
	require.NoError(t, ground.Begin([]byte(groundSeed)))
	sat := NewManager(c, WithAPID(packet.APIDBuyer), WithSatID(satID))
	require.NoError(t, sat.Begin([]byte(satSeed)))
	stranger := NewManager(c, WithAPID(packet.APIDBuyer))
	require.NoError(t, stranger.Begin([]byte("stranger")))

	hello, err := stranger.PrepareHandshake(60, 10)
	require.NoError(t, err)
	_, err = ground.RespondTo(sat.PublicKey(), wire(t, c, hello), 10)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Nil(t, ground.peerKey)
	assert.Equal(t, StateIdle, ground.State())

	hello, err = sat.PrepareHandshake(60, 11)
	require.NoError(t, err)
	_, err = ground.RespondTo(sat.PublicKey(), wire(t, c, hello), 11)
	require.NoError(t, err)
	assert.Equal(t, sat.PublicKey(), ground.peerKey)
	assert.Equal(t, StateActive, ground.State())
}

func TestPrepareHandshake_RekeysFromActive(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 60, 10)

	_, err := sat.PrepareHandshake(60, 20)
	require.NoError(t, err)
	assert.Equal(t, StateHandshakeInit, sat.State())
	assert.Equal(t, [32]byte{}, sat.key)
	assert.NotEqual(t, [32]byte{}, sat.ephPriv)
}

func TestMarkSent(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	m := NewManager(c)
	m.MarkSent()
	assert.Equal(t, StateIdle, m.State())

	require.NoError(t, m.Begin([]byte(satSeed)))
	_, err := m.PrepareHandshake(10, 1)
	require.NoError(t, err)
	m.MarkSent()
	assert.Equal(t, StateHandshakeWait, m.State())
}

func TestLock(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 60, 10)

	sat.Lock()
	assert.Equal(t, StateLocked, sat.State())
	assert.Equal(t, [32]byte{}, sat.key)
	assert.False(t, sat.IsSessionActive(11))

	var out packet.Payment
	ok, err := sat.EncryptAndSignPayment(sampleInvoice(t, c), &out)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = sat.PrepareHandshake(60, 12)
	require.NoError(t, err)
	assert.Equal(t, StateHandshakeInit, sat.State())
}

// =============================================================================
// Payment Tests
// =============================================================================

func TestEncryptAndSignPayment_NoopWhenInactive(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	m := NewManager(c)
	require.NoError(t, m.Begin([]byte(satSeed)))

	out := packet.Payment{EpochTS: 7}
	for i := range out.EncPayload {
		out.EncPayload[i] = 0xAA
	}
	before := out

	ok, err := m.EncryptAndSignPayment(sampleInvoice(t, c), &out)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, out)
}

func TestPayment_RoundTrip(t *testing.T) {
	for _, tier := range []packet.Tier{packet.TierEnterprise, packet.TierCommunity} {
		c := packet.NewCodec(tier)
		sat, ground := establish(t, c, 600, 1000)
		invoice := sampleInvoice(t, c)

		out := packet.Payment{EpochTS: 1001, PosVec: [3]float64{1, 2, 3}}
		ok, err := sat.EncryptAndSignPayment(invoice, &out)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, satID, out.SatID)
		assert.Equal(t, packet.APIDBuyer, out.Header.APID)

		buf, err := c.Encode(&out)
		require.NoError(t, err)
		require.NoError(t, c.VerifyCRC(buf, packet.KindPayment))
		prefix, _ := c.SignedPrefix(packet.KindPayment)
		assert.True(t, ed25519.Verify(sat.PublicKey(), buf[:prefix], out.Signature[:]))

		body, err := c.Body(invoice, packet.KindInvoice)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(body, out.EncPayload[:]), "ciphertext must differ from plaintext")

		plain := make([]byte, 80)
		n, err := ground.OpenPayment(&out, 1002, plain)
		require.NoError(t, err)
		assert.Equal(t, packet.CiphertextSize, n)
		assert.Equal(t, body, plain[:n])
		assert.Equal(t, make([]byte, 80-n), plain[n:])
	}
}

func TestEncryptAndSignPayment_FreshNonces(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 600, 1000)
	invoice := sampleInvoice(t, c)

	seen := make(map[uint32]bool)
	for range 32 {
		var out packet.Payment
		ok, err := sat.EncryptAndSignPayment(invoice, &out)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, seen[out.Nonce])
		seen[out.Nonce] = true
	}
}

func TestEncryptAndSignPayment_RefusesNonceReuse(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	ground := NewManager(c, WithRand(constReader(7)))
	require.NoError(t, ground.Begin([]byte(groundSeed)))
	sat := NewManager(c, WithRand(constReader(7)))
	require.NoError(t, sat.Begin([]byte(satSeed)))

	hello, err := sat.PrepareHandshake(60, 1)
	require.NoError(t, err)
	reply, err := ground.Respond(hello, 1)
	require.NoError(t, err)
	require.NoError(t, sat.ProcessHandshakeResponse(reply))

	invoice := sampleInvoice(t, c)
	var first packet.Payment
	ok, err := sat.EncryptAndSignPayment(invoice, &first)
	require.NoError(t, err)
	require.True(t, ok)

	second := packet.Payment{EpochTS: 99}
	ok, err = sat.EncryptAndSignPayment(invoice, &second)
	assert.ErrorIs(t, err, ErrNonceReuse)
	assert.False(t, ok)
	assert.Equal(t, packet.Payment{EpochTS: 99}, second)
}

func TestEncryptAndSignPayment_WrongInvoiceLength(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, _ := establish(t, c, 600, 1000)

	var out packet.Payment
	ok, err := sat.EncryptAndSignPayment(make([]byte, 10), &out)
	assert.False(t, ok)
	assert.ErrorIs(t, err, packet.ErrStructuralMismatch)
}

func TestOpenPayment_BufferTooSmall(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	_, ground := establish(t, c, 600, 1000)

	out := bytes.Repeat([]byte{0x5A}, packet.CiphertextSize-1)
	n, err := ground.OpenPayment(&packet.Payment{}, 1000, out)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Zero(t, n)
	assert.Equal(t, bytes.Repeat([]byte{0x5A}, packet.CiphertextSize-1), out)
}

func TestOpenPayment_NoActiveSession(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	_, ground := establish(t, c, 10, 100)

	out := make([]byte, packet.CiphertextSize)
	_, err := ground.OpenPayment(&packet.Payment{}, 200, out)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, StateIdle, ground.State())
}

// =============================================================================
// Tunnel Tests
// =============================================================================

func TestTunnel_RoundTrip(t *testing.T) {
	for _, tier := range []packet.Tier{packet.TierEnterprise, packet.TierCommunity} {
		c := packet.NewCodec(tier)
		sat, ground := establish(t, c, 600, 1000)

		tun := &packet.TunnelData{BlockNonce: 77, CmdCode: packet.CmdUnlock, TTL: 30}
		ct, err := ground.EncryptTunnel(tun, 42)
		require.NoError(t, err)
		require.Len(t, ct, c.Size(packet.KindTunnel))

		var got packet.TunnelData
		require.NoError(t, sat.DecryptTunnel(ct, 42, &got))
		assert.Equal(t, uint64(77), got.BlockNonce)
		assert.Equal(t, packet.CmdUnlock, got.CmdCode)
		assert.Equal(t, tun.GroundSig, got.GroundSig)
		assert.Equal(t, packet.APIDGround, got.Header.APID)
	}
}

func TestTunnel_Rejections(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, ground := establish(t, c, 600, 1000)

	ct, err := ground.EncryptTunnel(&packet.TunnelData{BlockNonce: 1, CmdCode: packet.CmdUnlock, TTL: 5}, 9)
	require.NoError(t, err)

	var out packet.TunnelData
	tampered := bytes.Clone(ct)
	tampered[30] ^= 0x01
	assert.ErrorIs(t, sat.DecryptTunnel(tampered, 9, &out), ErrDecryptFailed)
	assert.ErrorIs(t, sat.DecryptTunnel(ct, 10, &out), ErrDecryptFailed)
	assert.ErrorIs(t, sat.DecryptTunnel(ct[:40], 9, &out), ErrDecryptFailed)
	assert.Equal(t, packet.TunnelData{}, out)

	_, err = ground.EncryptTunnel(&packet.TunnelData{CmdCode: packet.CmdUnlock}, 9)
	assert.ErrorIs(t, err, ErrNonceReuse)

	sat.WipeSession()
	assert.ErrorIs(t, sat.DecryptTunnel(ct, 9, &out), ErrNoActiveSession)
}

func TestTunnel_ForgedGroundSignature(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	sat, ground := establish(t, c, 600, 1000)

	// the session is genuine but the sat now pins a different ground key
	other := NewManager(c)
	require.NoError(t, other.Begin([]byte("other-ground")))
	sat.SetPeerKey(other.PublicKey())

	ct, err := ground.EncryptTunnel(&packet.TunnelData{CmdCode: packet.CmdUnlock}, 3)
	require.NoError(t, err)

	var out packet.TunnelData
	assert.ErrorIs(t, sat.DecryptTunnel(ct, 3, &out), ErrDecryptFailed)
}

func TestEncryptTunnel_NoActiveSession(t *testing.T) {
	c := packet.NewCodec(packet.TierEnterprise)
	m := NewManager(c)
	require.NoError(t, m.Begin([]byte(groundSeed)))
	_, err := m.EncryptTunnel(&packet.TunnelData{}, 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

// =============================================================================
// Nonce Layout Tests
// =============================================================================

func TestStreamNonce(t *testing.T) {
	n := streamNonce(directionTunnel, 0x01020304)
	assert.Equal(t, []byte{0, 0, 0, 2, 4, 3, 2, 1, 0, 0, 0, 0}, n[:])
}

// =============================================================================
// Receipt Tests
// =============================================================================

func TestSignReceipt_SurvivesDeliveryWrapping(t *testing.T) {
	c := packet.NewCodec(packet.TierCommunity)
	seller := NewManager(c, WithAPID(packet.APIDSeller))
	require.NoError(t, seller.Begin([]byte("sat-a")))

	rcpt := &packet.Receipt{ExecTime: 1_700_000_100, EncTxID: 42, EncStatus: 1}
	require.NoError(t, seller.SignReceipt(rcpt))

	var d packet.Delivery
	require.NoError(t, c.WrapReceipt(rcpt, &d))
	got, err := c.UnwrapReceipt(&d, packet.APIDSeller)
	require.NoError(t, err)

	buf, err := c.Encode(got)
	require.NoError(t, err)
	require.NoError(t, c.VerifyCRC(buf, packet.KindReceipt))
	prefix, _ := c.SignedPrefix(packet.KindReceipt)
	assert.True(t, ed25519.Verify(seller.PublicKey(), buf[:prefix], got.Signature[:]))
}
