package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/go-i2p/go-void/lib/config"
	"github.com/go-i2p/go-void/lib/keys"
	"github.com/go-i2p/go-void/lib/session"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newKeygenCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the identity seed and print its public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("identity.seed_file")
			var seed []byte
			var err error
			if show {
				seed, err = keys.LoadSeed(path)
			} else {
				seed, err = keys.GenerateSeedFile(path)
			}
			if err != nil {
				return err
			}
			defer clear(seed)

			id, err := session.DeriveIdentity(seed)
			if err != nil {
				return err
			}
			pub := id.Public().(ed25519.PublicKey)
			fmt.Fprintf(cmd.OutOrStdout(), "seed:        %s\npublic_key:  %s\nfingerprint: %s\n",
				path, hex.EncodeToString(pub), session.Fingerprint(pub))
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the public key of the existing seed instead of creating one")
	cmd.Flags().String("seed", "", "seed file (default identity.seed_file)")
	_ = viper.BindPFlag("identity.seed_file", cmd.Flags().Lookup("seed"))
	return cmd
}

func newTrustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust NAME APID SAT_ID PUBLIC_KEY",
		Short: "Add a peer identity to the trusted key ring",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			apid, err := strconv.ParseUint(args[1], 0, 16)
			if err != nil {
				return oops.Errorf("invalid apid %q: %w", args[1], err)
			}
			satID, err := strconv.ParseUint(args[2], 0, 32)
			if err != nil {
				return oops.Errorf("invalid sat_id %q: %w", args[2], err)
			}
			pub, err := hex.DecodeString(args[3])
			if err != nil {
				return oops.Wrapf(keys.ErrInvalidPublicKey, "%v", err)
			}

			path := viper.GetString("keys.trusted_file")
			ring, err := keys.LoadKeyRing(path)
			if errors.Is(err, fs.ErrNotExist) {
				ring, err = keys.NewKeyRing(), nil
			}
			if err != nil {
				return err
			}
			if err := ring.Add(args[0], uint16(apid), uint32(satID), pub); err != nil {
				return err
			}
			if err := keys.SaveKeyRing(path, ring); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trusted %s (apid 0x%03x, sat_id 0x%x), %d keys in %s\n",
				args[0], apid, satID, ring.Len(), path)
			return nil
		},
	}
}

// tierFlag returns --tier when set and the configured tier otherwise.
func tierFlag(cmd *cobra.Command) string {
	if t, _ := cmd.Flags().GetString("tier"); t != "" {
		return t
	}
	if cfg, err := config.NewConfigFromViper(); err == nil {
		return cfg.Tier
	}
	return config.Defaults().Tier
}
