package bouncer

import (
	"math"
	"time"

	"github.com/go-i2p/go-void/lib/clock"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/samber/oops"
)

// sanitize applies the policy to a decrypted invoice.
func (b *Bouncer) sanitize(inv *packet.Invoice, now time.Time) error {
	for i, v := range inv.PosVec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return oops.Wrapf(ErrSanitizationFailed, "pos_vec[%d] is not finite", i)
		}
	}
	for i, v := range inv.VelVec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return oops.Wrapf(ErrSanitizationFailed, "vel_vec[%d] is not finite", i)
		}
	}
	if inv.SatID == 0 {
		return oops.Wrapf(ErrSanitizationFailed, "seller id is zero")
	}
	if inv.Amount < b.policy.MinAmount || inv.Amount > b.policy.MaxAmount {
		return oops.Wrapf(ErrSanitizationFailed, "amount %d outside [%d, %d]", inv.Amount, b.policy.MinAmount, b.policy.MaxAmount)
	}
	if _, ok := b.assets[inv.AssetID]; !ok {
		return oops.Wrapf(ErrSanitizationFailed, "asset %d not allowed", inv.AssetID)
	}
	if err := clock.ValidateSkew(inv.EpochTS, now, b.policy.MaxSkew); err != nil {
		return oops.Wrapf(ErrSanitizationFailed, "%v", err)
	}
	return nil
}
