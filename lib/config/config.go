package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-i2p/go-void/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const (
	GOVOID_BASE_DIR = ".go-void"
	envPrefix       = "GOVOID"
)

// InitConfig wires viper to the config file and environment, applies the
// defaults and writes a default config file on first run.
func InitConfig() error {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildVoidDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	return handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault("tier", d.Tier)

	viper.SetDefault("identity.role", d.Identity.Role)
	viper.SetDefault("identity.apid", d.Identity.APID)
	viper.SetDefault("identity.sat_id", d.Identity.SatID)
	viper.SetDefault("identity.seed_file", d.Identity.SeedFile)

	viper.SetDefault("session.ttl", d.Session.TTL)

	viper.SetDefault("bouncer.min_amount", d.Bouncer.MinAmount)
	viper.SetDefault("bouncer.max_amount", d.Bouncer.MaxAmount)
	viper.SetDefault("bouncer.allowed_assets", d.Bouncer.AllowedAssets)
	viper.SetDefault("bouncer.max_skew", d.Bouncer.MaxSkew)
	viper.SetDefault("bouncer.replay_window", d.Bouncer.ReplayWindow)

	viper.SetDefault("keys.trusted_file", d.Keys.TrustedFile)

	viper.SetDefault("bridge.device", d.Bridge.Device)
	viper.SetDefault("bridge.settlement_url", d.Bridge.SettlementURL)
	viper.SetDefault("bridge.rate", d.Bridge.Rate)
	viper.SetDefault("bridge.burst", d.Bridge.Burst)
	viper.SetDefault("bridge.timeout", d.Bridge.Timeout)

	viper.SetDefault("clock.ntp_enabled", d.Clock.NTPEnabled)
	viper.SetDefault("clock.ntp_servers", d.Clock.NTPServers)
	viper.SetDefault("clock.ntp_timeout", d.Clock.NTPTimeout)
}

// NewConfigFromViper builds a Config from the current viper settings and
// validates it.
func NewConfigFromViper() (*Config, error) {
	assets := viper.GetIntSlice("bouncer.allowed_assets")
	allowed := make([]uint16, 0, len(assets))
	for _, a := range assets {
		if a <= 0 || a > 0xFFFF {
			return nil, newValidationError("bouncer.allowed_assets: asset id out of range")
		}
		allowed = append(allowed, uint16(a))
	}

	role := strings.ToLower(strings.TrimSpace(viper.GetString("identity.role")))
	apid := uint16(viper.GetUint("identity.apid"))
	if apid == 0 && role != RoleGround {
		if known, err := APIDForRole(role); err == nil {
			apid = known
		}
	}

	cfg := &Config{
		Tier: viper.GetString("tier"),
		Identity: IdentityConfig{
			Role:     role,
			APID:     apid,
			SatID:    viper.GetUint32("identity.sat_id"),
			SeedFile: viper.GetString("identity.seed_file"),
		},
		Session: SessionConfig{TTL: viper.GetUint16("session.ttl")},
		Bouncer: BouncerConfig{
			MinAmount:     viper.GetUint64("bouncer.min_amount"),
			MaxAmount:     viper.GetUint64("bouncer.max_amount"),
			AllowedAssets: allowed,
			MaxSkew:       viper.GetDuration("bouncer.max_skew"),
			ReplayWindow:  viper.GetDuration("bouncer.replay_window"),
		},
		Keys: KeysConfig{TrustedFile: viper.GetString("keys.trusted_file")},
		Bridge: BridgeConfig{
			Device:        viper.GetString("bridge.device"),
			SettlementURL: viper.GetString("bridge.settlement_url"),
			Rate:          viper.GetFloat64("bridge.rate"),
			Burst:         viper.GetInt("bridge.burst"),
			Timeout:       viper.GetDuration("bridge.timeout"),
		},
		Clock: ClockConfig{
			NTPEnabled: viper.GetBool("clock.ntp_enabled"),
			NTPServers: viper.GetStringSlice("clock.ntp_servers"),
			NTPTimeout: viper.GetDuration("clock.ntp_timeout"),
		},
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefaultConfig(defaultConfigDir string) error {
	if err := os.MkdirAll(defaultConfigDir, 0o700); err != nil {
		return oops.Errorf("could not create config directory: %w", err)
	}
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := viper.SafeWriteConfigAs(defaultConfigFile); err != nil {
		return oops.Errorf("could not write default config file: %w", err)
	}
	log.WithField("path", defaultConfigFile).Debug("created default configuration")
	return nil
}

func handleConfigFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		log.WithField("path", viper.ConfigFileUsed()).Debug("using config file")
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok && CfgFile == "" {
		return createDefaultConfig(BuildVoidDirPath())
	}
	if CfgFile != "" && !util.CheckFileExists(CfgFile) {
		return oops.Errorf("config file %s not found or not a regular file", CfgFile)
	}
	return oops.Errorf("error reading config file: %w", err)
}

// BuildVoidDirPath returns $HOME/.go-void.
func BuildVoidDirPath() string {
	return filepath.Join(util.UserHome(), GOVOID_BASE_DIR)
}
