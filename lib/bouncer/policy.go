package bouncer

import "time"

// Policy holds the business rules applied to a decrypted invoice.
type Policy struct {
	MinAmount     uint64
	MaxAmount     uint64
	AllowedAssets []uint16
	MaxSkew       time.Duration
	ReplayWindow  time.Duration
}

// Asset ids understood by the settlement side.
const (
	AssetUSDC uint16 = 1
	AssetUSDT uint16 = 2
)

// DefaultPolicy accepts 1 to 1,000,000 minor units of USDC or USDT quoted
// within five minutes of local time.
func DefaultPolicy() Policy {
	return Policy{
		MinAmount:     1,
		MaxAmount:     1_000_000,
		AllowedAssets: []uint16{AssetUSDC, AssetUSDT},
		MaxSkew:       5 * time.Minute,
		ReplayWindow:  DefaultReplayWindow,
	}
}
