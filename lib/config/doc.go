// Package config loads go-void settings through viper.
//
// Settings come from, in rising priority: the typed defaults in Defaults(),
// $HOME/.go-void/config.yaml (or the file named by --config) and
// environment variables prefixed with GOVOID_ (dots become underscores, so
// bridge.settlement_url is GOVOID_BRIDGE_SETTLEMENT_URL).
//
// The identity role selects which end of the link this process plays:
//
//   - ground: responds to handshakes, runs the Bouncer, settles, downlinks Acks
//   - buyer:  Sat B, initiates handshakes and sends payments
//   - seller: Sat A, quotes invoices and signs delivery receipts
package config
