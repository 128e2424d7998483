package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-i2p/go-void/lib/packet"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Defaults Tests
// =============================================================================

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, "enterprise", d.Tier)
	assert.Equal(t, RoleGround, d.Identity.Role)
	assert.True(t, filepath.IsAbs(d.Identity.SeedFile))
	assert.Equal(t, packet.DefaultSessionTTL, d.Session.TTL)
	assert.Equal(t, []uint16{1, 2}, d.Bouncer.AllowedAssets)
	assert.Equal(t, 5*time.Minute, d.Bouncer.MaxSkew)
	assert.Equal(t, 10*time.Second, d.Bridge.Timeout)
	assert.False(t, d.Clock.NTPEnabled)
	assert.NoError(t, Validate(&d))
}

func TestAPIDForRole(t *testing.T) {
	tests := []struct {
		role string
		want uint16
	}{
		{"ground", packet.APIDGround},
		{"BUYER", packet.APIDBuyer},
		{"seller", packet.APIDSeller},
	}
	for _, tt := range tests {
		got, err := APIDForRole(tt.role)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := APIDForRole("relay")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"tier", func(c *Config) { c.Tier = "lora" }, "unknown protocol tier"},
		{"role", func(c *Config) { c.Identity.Role = "relay" }, "identity.role"},
		{"apid", func(c *Config) { c.Identity.APID = 0x800 }, "identity.apid"},
		{"seed file", func(c *Config) { c.Identity.SeedFile = "" }, "identity.seed_file"},
		{"buyer sat id", func(c *Config) { c.Identity.Role = RoleBuyer }, "identity.sat_id"},
		{"ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"min amount", func(c *Config) { c.Bouncer.MinAmount = 0 }, "bouncer.min_amount"},
		{"max below min", func(c *Config) { c.Bouncer.MaxAmount = 0 }, "bouncer.max_amount"},
		{"assets", func(c *Config) { c.Bouncer.AllowedAssets = nil }, "bouncer.allowed_assets"},
		{"skew", func(c *Config) { c.Bouncer.MaxSkew = 0 }, "bouncer.max_skew"},
		{"replay window", func(c *Config) { c.Bouncer.ReplayWindow = time.Minute }, "bouncer.replay_window"},
		{"rate", func(c *Config) { c.Bridge.Rate = -1 }, "bridge.rate"},
		{"burst", func(c *Config) { c.Bridge.Burst = 0 }, "bridge.burst"},
		{"timeout", func(c *Config) { c.Bridge.Timeout = 0 }, "bridge.timeout"},
		{"ntp servers", func(c *Config) { c.Clock.NTPEnabled = true; c.Clock.NTPServers = nil }, "clock.ntp_servers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// =============================================================================
// Viper Tests
// =============================================================================

func TestNewConfigFromViper_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	setDefaults()

	cfg, err := NewConfigFromViper()
	require.NoError(t, err)
	d := Defaults()
	assert.Equal(t, &d, cfg)
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	setDefaults()

	viper.Set("tier", "community")
	viper.Set("identity.role", "buyer")
	viper.Set("identity.sat_id", 0xB2B2)
	viper.Set("session.ttl", 120)
	viper.Set("bouncer.allowed_assets", []int{2})
	viper.Set("bouncer.max_skew", "90s")
	viper.Set("bridge.device", "/dev/ttyUSB0")
	viper.Set("clock.ntp_enabled", true)

	cfg, err := NewConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, "community", cfg.Tier)
	assert.Equal(t, RoleBuyer, cfg.Identity.Role)
	assert.Equal(t, packet.APIDBuyer, cfg.Identity.APID)
	assert.Equal(t, uint32(0xB2B2), cfg.Identity.SatID)
	assert.Equal(t, uint16(120), cfg.Session.TTL)
	assert.Equal(t, []uint16{2}, cfg.Bouncer.AllowedAssets)
	assert.Equal(t, 90*time.Second, cfg.Bouncer.MaxSkew)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Bridge.Device)
	assert.True(t, cfg.Clock.NTPEnabled)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	setDefaults()

	viper.Set("bouncer.allowed_assets", []int{70000})
	_, err := NewConfigFromViper()
	assert.Error(t, err)

	viper.Set("bouncer.allowed_assets", []int{1})
	viper.Set("tier", "bogus")
	_, err = NewConfigFromViper()
	assert.Error(t, err)
}

func TestInitConfig_ReadsFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "void.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tier: snlp\nbridge:\n  rate: 2.5\n"), 0o600))

	CfgFile = path
	defer func() { CfgFile = "" }()
	require.NoError(t, InitConfig())

	cfg, err := NewConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, "snlp", cfg.Tier)
	assert.Equal(t, 2.5, cfg.Bridge.Rate)
	assert.Equal(t, Defaults().Bridge.Burst, cfg.Bridge.Burst)
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	CfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() { CfgFile = "" }()
	assert.Error(t, InitConfig())
}
