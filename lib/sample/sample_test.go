package sample

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/go-i2p/go-void/lib/bouncer"
	"github.com/go-i2p/go-void/lib/clock"
	"github.com/go-i2p/go-void/lib/keys"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

func TestGenerate_EveryKindValid(t *testing.T) {
	for _, tier := range []packet.Tier{packet.TierEnterprise, packet.TierCommunity} {
		t.Run(tier.String(), func(t *testing.T) {
			set, err := Generate(tier, epoch, nil)
			require.NoError(t, err)
			c := packet.NewCodec(tier)

			seen := map[packet.Kind]bool{}
			for _, r := range set.Records {
				assert.Len(t, r.Bytes, c.Size(r.Kind), r.Name)
				_, err := c.DecodeAndValidate(r.Bytes, r.Kind)
				require.NoError(t, err, r.Name)
				if _, ok := c.CRCOffset(r.Kind); ok {
					assert.NoError(t, c.VerifyCRC(r.Bytes, r.Kind), r.Name)
				}
				seen[r.Kind] = true
			}
			// The tunnel only travels inside the Ack.
			assert.Len(t, seen, len(packet.Kinds())-1)
			assert.False(t, seen[packet.KindTunnel])
		})
	}
}

func TestGenerate_PaymentAdmitted(t *testing.T) {
	set, err := Generate(packet.TierCommunity, epoch, nil)
	require.NoError(t, err)
	c := packet.NewCodec(packet.TierCommunity)

	ring := keys.NewKeyRing()
	require.NoError(t, ring.Add("sat-b", packet.APIDBuyer, BuyerSatID, set.Buyer.PublicKey()))
	b := bouncer.New(c, ring, set.Ground, bouncer.DefaultPolicy(), bouncer.WithClock(clock.Fixed(epoch)))

	var pay []byte
	for _, r := range set.Records {
		if r.Kind == packet.KindPayment {
			pay = r.Bytes
		}
	}
	out := make([]byte, packet.CiphertextSize)
	adm, err := b.Process(pay, out)
	require.NoError(t, err)
	assert.Equal(t, SellerSatID, adm.SellerID)
	assert.Equal(t, uint64(2500), adm.Amount)
}

func TestGenerate_AckTunnelAndReceipt(t *testing.T) {
	set, err := Generate(packet.TierEnterprise, epoch, nil)
	require.NoError(t, err)
	c := packet.NewCodec(packet.TierEnterprise)

	byKind := map[packet.Kind][]byte{}
	for _, r := range set.Records {
		byKind[r.Kind] = r.Bytes
	}

	ack, err := c.DecodeAck(byKind[packet.KindAck])
	require.NoError(t, err)
	var tunnel packet.TunnelData
	require.NoError(t, set.Buyer.DecryptTunnel(ack.EncTunnel, ack.TargetTxID, &tunnel))
	assert.Equal(t, packet.CmdUnlock, tunnel.CmdCode)

	d, err := c.DecodeDelivery(byKind[packet.KindDelivery])
	require.NoError(t, err)
	rcpt, err := c.UnwrapReceipt(d, packet.APIDSeller)
	require.NoError(t, err)
	buf, err := c.Encode(rcpt)
	require.NoError(t, err)
	prefix, _ := c.SignedPrefix(packet.KindReceipt)
	assert.True(t, ed25519.Verify(set.Seller.PublicKey(), buf[:prefix], rcpt.Signature[:]))
	assert.Equal(t, byKind[packet.KindReceipt], buf)
}
