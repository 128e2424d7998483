package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/logger"
)

// Identity roles.
const (
	RoleGround = "ground"
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Config is the full go-void configuration.
type Config struct {
	// Tier is "enterprise" (6-byte CCSDS header) or "community" (14-byte SNLP header).
	Tier     string
	Identity IdentityConfig
	Session  SessionConfig
	Bouncer  BouncerConfig
	Keys     KeysConfig
	Bridge   BridgeConfig
	Clock    ClockConfig
}

// IdentityConfig names the local endpoint.
type IdentityConfig struct {
	Role string
	// APID is stamped on outbound headers. Zero on a satellite role selects
	// the well-known APID for that role.
	APID     uint16
	SatID    uint32
	SeedFile string
}

// SessionConfig holds handshake settings.
type SessionConfig struct {
	// TTL is the session window in seconds proposed by an initiator.
	TTL uint16
}

// BouncerConfig holds the invoice acceptance policy.
type BouncerConfig struct {
	MinAmount     uint64
	MaxAmount     uint64
	AllowedAssets []uint16
	MaxSkew       time.Duration
	ReplayWindow  time.Duration
}

// KeysConfig locates the trusted key ring.
type KeysConfig struct {
	TrustedFile string
}

// BridgeConfig holds the ground bridge settings.
type BridgeConfig struct {
	// Device is the modem character device. Empty reads stdin and writes stdout.
	Device        string
	SettlementURL string
	// Rate is the sustained inbound frame rate; zero disables limiting.
	Rate    float64
	Burst   int
	Timeout time.Duration
}

// ClockConfig selects the time source.
type ClockConfig struct {
	NTPEnabled bool
	NTPServers []string
	NTPTimeout time.Duration
}

// Defaults returns the built-in configuration rooted at BuildVoidDirPath().
func Defaults() Config {
	dir := BuildVoidDirPath()
	return Config{
		Tier: packet.TierEnterprise.String(),
		Identity: IdentityConfig{
			Role:     RoleGround,
			APID:     packet.APIDGround,
			SeedFile: filepath.Join(dir, "identity.seed"),
		},
		Session: SessionConfig{TTL: packet.DefaultSessionTTL},
		Bouncer: BouncerConfig{
			MinAmount:     1,
			MaxAmount:     1_000_000,
			AllowedAssets: []uint16{1, 2},
			MaxSkew:       5 * time.Minute,
			ReplayWindow:  10 * time.Minute,
		},
		Keys: KeysConfig{TrustedFile: filepath.Join(dir, "trusted_keys.yaml")},
		Bridge: BridgeConfig{
			SettlementURL: "http://127.0.0.1:8080",
			Rate:          10,
			Burst:         20,
			Timeout:       10 * time.Second,
		},
		Clock: ClockConfig{
			NTPServers: []string{"0.pool.ntp.org", "1.pool.ntp.org", "2.pool.ntp.org", "time.cloudflare.com"},
			NTPTimeout: 5 * time.Second,
		},
	}
}

// APIDForRole returns the well-known APID of a role.
func APIDForRole(role string) (uint16, error) {
	switch strings.ToLower(role) {
	case RoleGround:
		return packet.APIDGround, nil
	case RoleBuyer:
		return packet.APIDBuyer, nil
	case RoleSeller:
		return packet.APIDSeller, nil
	}
	return 0, newValidationError(fmt.Sprintf("identity.role %q is not one of ground, buyer, seller", role))
}

// Validate returns an error describing the first unusable value in cfg.
func Validate(cfg *Config) error {
	validators := []func() error{
		func() error { return validateTier(cfg.Tier) },
		func() error { return validateIdentity(cfg.Identity) },
		func() error { return validateSession(cfg.Session) },
		func() error { return validateBouncer(cfg.Bouncer) },
		func() error { return validateBridge(cfg.Bridge) },
		func() error { return validateClock(cfg.Clock) },
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithFields(logger.Fields{
				"at": "config.Validate",
			}).WithError(err).Error("invalid configuration")
			return err
		}
	}
	log.WithField("at", "config.Validate").Debug("configuration validated")
	return nil
}

func validateTier(tier string) error {
	if _, err := packet.ParseTier(tier); err != nil {
		return newValidationError(err.Error())
	}
	return nil
}

func validateIdentity(id IdentityConfig) error {
	if _, err := APIDForRole(id.Role); err != nil {
		return err
	}
	if id.APID > packet.MaxAPID {
		return newValidationError(fmt.Sprintf("identity.apid 0x%x exceeds 11 bits", id.APID))
	}
	if id.SeedFile == "" {
		return newValidationError("identity.seed_file must be set")
	}
	if strings.ToLower(id.Role) == RoleBuyer && id.SatID == 0 {
		return newValidationError("identity.sat_id must be set for the buyer role")
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.TTL == 0 {
		return newValidationError("session.ttl must be at least 1 second")
	}
	return nil
}

func validateBouncer(b BouncerConfig) error {
	switch {
	case b.MinAmount == 0:
		return newValidationError("bouncer.min_amount must be at least 1")
	case b.MaxAmount < b.MinAmount:
		return newValidationError("bouncer.max_amount must not be below bouncer.min_amount")
	case len(b.AllowedAssets) == 0:
		return newValidationError("bouncer.allowed_assets must not be empty")
	case b.MaxSkew <= 0:
		return newValidationError("bouncer.max_skew must be positive")
	case b.ReplayWindow < b.MaxSkew:
		return newValidationError("bouncer.replay_window must cover bouncer.max_skew")
	}
	return nil
}

func validateBridge(b BridgeConfig) error {
	switch {
	case b.Rate < 0:
		return newValidationError("bridge.rate must not be negative")
	case b.Rate > 0 && b.Burst < 1:
		return newValidationError("bridge.burst must be at least 1 when bridge.rate is set")
	case b.Timeout <= 0:
		return newValidationError("bridge.timeout must be positive")
	}
	return nil
}

func validateClock(c ClockConfig) error {
	if c.NTPEnabled && len(c.NTPServers) == 0 {
		return newValidationError("clock.ntp_servers must not be empty when clock.ntp_enabled is set")
	}
	if c.NTPEnabled && c.NTPTimeout <= 0 {
		return newValidationError("clock.ntp_timeout must be positive")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
