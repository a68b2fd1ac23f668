// Package cmd builds the creditchaind root command: cobra for the command
// tree, viper for layered configuration.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CREDITCHAIN"

// NewRootCmd builds the creditchaind command tree.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "creditchaind",
		Short:         "Staked-verifier clean-energy credit chain daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("home", ".creditchain", "application home directory")
	_ = v.BindPFlag("home", root.PersistentFlags().Lookup("home"))

	root.AddCommand(
		newInitGenesisCmd(v),
		newStartCmd(v),
		newQueryCmd(v),
	)
	return root
}
