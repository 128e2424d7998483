package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-i2p/go-void/lib/bouncer"
	"github.com/go-i2p/go-void/lib/bridge"
	"github.com/go-i2p/go-void/lib/clock"
	"github.com/go-i2p/go-void/lib/config"
	"github.com/go-i2p/go-void/lib/keys"
	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/go-void/lib/session"
	"github.com/go-i2p/go-void/lib/settlement"
	"github.com/go-i2p/go-void/lib/util"
	"github.com/go-i2p/go-void/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newGroundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ground",
		Short: "Run the ground station bridge on the modem device or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t, _ := cmd.Flags().GetString("tier"); t != "" {
				viper.Set("tier", t)
			}
			cfg, err := config.NewConfigFromViper()
			if err != nil {
				return err
			}
			return runGround(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("device", "", "modem device (default stdin/stdout)")
	cmd.Flags().String("settlement-url", "", "settlement gateway base url")
	_ = viper.BindPFlag("bridge.device", cmd.Flags().Lookup("device"))
	_ = viper.BindPFlag("bridge.settlement_url", cmd.Flags().Lookup("settlement-url"))
	return cmd
}

func runGround(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	tier, err := packet.ParseTier(cfg.Tier)
	if err != nil {
		return err
	}
	codec := packet.NewCodec(tier)

	clk, stopClock := groundClock(cfg.Clock)
	defer stopClock()

	mgr, err := loadIdentity(codec, cfg.Identity)
	if err != nil {
		return err
	}
	ring, err := keys.LoadKeyRing(cfg.Keys.TrustedFile)
	if err != nil {
		return oops.Errorf("ground needs a trusted key ring: %w", err)
	}
	sink, err := settlement.NewClient(cfg.Bridge.SettlementURL, cfg.Bridge.Timeout)
	if err != nil {
		return err
	}

	policy := bouncer.Policy{
		MinAmount:     cfg.Bouncer.MinAmount,
		MaxAmount:     cfg.Bouncer.MaxAmount,
		AllowedAssets: cfg.Bouncer.AllowedAssets,
		MaxSkew:       cfg.Bouncer.MaxSkew,
		ReplayWindow:  cfg.Bouncer.ReplayWindow,
	}
	bnc := bouncer.New(codec, ring, mgr, policy, bouncer.WithClock(clk))

	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if cfg.Bridge.Device != "" {
		dev, err := os.OpenFile(cfg.Bridge.Device, os.O_RDWR, 0)
		if err != nil {
			return oops.Errorf("failed to open modem %s: %w", cfg.Bridge.Device, err)
		}
		util.RegisterCloser(dev)
		in, out = dev, dev
	}

	bcfg := bridge.DefaultConfig()
	bcfg.Rate = cfg.Bridge.Rate
	bcfg.Burst = cfg.Bridge.Burst
	bcfg.TunnelTTL = cfg.Session.TTL
	bcfg.MaxSkew = cfg.Bouncer.MaxSkew
	br := bridge.New(codec, mgr, bnc, ring, sink, out, bcfg, bridge.WithClock(clk))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	signals.RegisterPreShutdownHandler(func() {
		cancel()
		_ = util.CloseAll()
	})
	signals.RegisterInterruptHandler(mgr.Lock)
	signals.RegisterReloadHandler(func() {
		fresh, err := keys.LoadKeyRing(cfg.Keys.TrustedFile)
		if err != nil {
			log.WithError(err).Warn("key ring reload failed, keeping current keys")
			return
		}
		ring.Replace(fresh)
		log.WithField("keys", ring.Len()).Info("key ring reloaded")
	})
	go signals.Handle()
	defer signals.StopHandle()

	if cfg.Bridge.Device != "" {
		go operatorLoop(ctx, os.Stdin, br, mgr.Lock)
	}

	log.WithFields(logger.Fields{
		"at":         "runGround",
		"tier":       tier.String(),
		"device":     cfg.Bridge.Device,
		"settlement": sink.Endpoint(),
		"trusted":    ring.Len(),
		"identity":   session.Fingerprint(mgr.PublicKey()),
	}).Info("ground bridge running")

	err = br.Run(ctx, in)
	signals.Shutdown()

	log.WithFields(logger.Fields{
		"at":    "runGround",
		"stats": br.Stats().String(),
	}).Info("ground bridge stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadIdentity loads or creates the seed and returns a manager holding the
// derived identity. The seed bytes do not outlive this call.
func loadIdentity(codec *packet.Codec, id config.IdentityConfig) (*session.Manager, error) {
	seed, created, err := keys.LoadOrCreateSeed(id.SeedFile)
	if err != nil {
		return nil, err
	}
	defer clear(seed)
	if created {
		log.WithField("path", id.SeedFile).Warn("created a new identity seed; peers must trust its public key")
	}
	mgr := session.NewManager(codec, session.WithAPID(id.APID), session.WithSatID(id.SatID))
	if err := mgr.Begin(seed); err != nil {
		return nil, err
	}
	return mgr, nil
}

// groundClock returns the configured time source and a function releasing it.
func groundClock(c config.ClockConfig) (clock.Clock, func()) {
	if !c.NTPEnabled {
		return clock.System{}, func() {}
	}
	nc := clock.NewNTPClock(nil, c.NTPServers, c.NTPTimeout)
	if err := nc.Sync(); err != nil {
		log.WithError(err).Warn("initial NTP sync failed, using host clock until the next refresh")
	}
	nc.Start(clock.DefaultRefresh)
	return nc, nc.Stop
}

// operatorLoop maps operator input onto modem commands. lock is the kill
// switch; a locked ground refuses handshakes until restart.
func operatorLoop(ctx context.Context, r io.Reader, br *bridge.Bridge, lock func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		var err error
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "h", "handshake":
			err = br.TriggerHandshake()
		case "ack", "approve":
			err = br.ApproveBuy()
		case "lock":
			lock()
		case "receipts":
			log.WithField("receipts", br.Receipts().Len()).Info("stored receipts")
		case "":
		default:
			log.WithField("input", sc.Text()).Warn("unknown operator command (h, ack, lock, receipts)")
		}
		if err != nil {
			log.WithError(err).Warn("operator command failed")
		}
	}
}
