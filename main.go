package main

import (
	"os"

	"github.com/go-i2p/go-void/lib/config"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetGoI2PLogger()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "go-void",
		Short:         "VOID satellite payment link tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig()
		},
	}
	root.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default $HOME/.go-void/config.yaml)")
	root.PersistentFlags().String("tier", "", "protocol tier: enterprise|ccsds or community|snlp")

	root.AddCommand(
		newKeygenCmd(),
		newTrustCmd(),
		newGenCmd(),
		newInspectCmd(),
		newGroundCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("go-void failed")
		os.Exit(1)
	}
}
