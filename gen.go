package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-i2p/go-void/lib/packet"
	"github.com/go-i2p/go-void/lib/sample"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// tierSuffix names generated files after the header family.
var tierSuffix = map[packet.Tier]string{
	packet.TierEnterprise: "ccsds",
	packet.TierCommunity:  "snlp",
}

func newGenCmd() *cobra.Command {
	var (
		outDir string
		asHex  bool
		epoch  int64
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a consistent sample record set for both tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if epoch > 0 {
				now = time.Unix(epoch, 0)
			}
			if !asHex {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return oops.Errorf("failed to create output directory: %w", err)
				}
			}
			w := cmd.OutOrStdout()
			for _, tier := range []packet.Tier{packet.TierCommunity, packet.TierEnterprise} {
				set, err := sample.Generate(tier, now, nil)
				if err != nil {
					return err
				}
				for _, r := range set.Records {
					if asHex {
						fmt.Fprintf(w, "%s %s %s\n", r.Name, tierSuffix[tier], hex.EncodeToString(r.Bytes))
						continue
					}
					path := filepath.Join(outDir, fmt.Sprintf("void_%s_%s.bin", r.Name, tierSuffix[tier]))
					if err := os.WriteFile(path, r.Bytes, 0o644); err != nil {
						return oops.Errorf("failed to write %s: %w", path, err)
					}
					fmt.Fprintf(w, "[%s] %s: %d bytes -> %s\n", r.Name, tierSuffix[tier], len(r.Bytes), path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "packets", "output directory")
	cmd.Flags().BoolVar(&asHex, "hex", false, "print hex lines instead of writing files")
	cmd.Flags().Int64Var(&epoch, "epoch", 0, "fixed unix time for the records (default now)")
	return cmd
}
