package cmd

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wattverify/chain/internal/config"
	"github.com/wattverify/chain/internal/state"
)

func newInitGenesisCmd(v *viper.Viper) *cobra.Command {
	var admin string
	var baselineVerifier string

	cmd := &cobra.Command{
		Use:   "init-genesis",
		Short: "Initialize a fresh home directory with default configuration and genesis state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := v.GetString("home")
			if err := os.MkdirAll(home, 0o755); err != nil {
				return fmt.Errorf("mkdir home: %w", err)
			}

			cfg := config.Default()
			if admin == "" {
				return fmt.Errorf("--admin is required (privileged address for forceFinalize and admin setters)")
			}
			v.Set("admin", admin)
			v.Set("quorum_bps", cfg.QuorumBps)
			v.Set("claim_window_seconds", cfg.ClaimWindowSeconds)
			v.Set("reward_per_wh_wei", cfg.RewardPerWhWei)
			v.Set("slash_bps", cfg.SlashBps)
			v.Set("fault_threshold", cfg.FaultThreshold)
			v.Set("min_stake", cfg.MinStake)
			v.Set("permissioned_mode", cfg.PermissionedMode)
			v.Set("baseline_mode", baselineVerifier != "")
			v.Set("single_verifier_override", baselineVerifier)
			v.Set("slashing_disabled", cfg.SlashingDisabled)
			v.Set("chain_id", cfg.ChainID)
			v.Set("abci_addr", cfg.ABCIAddr)
			v.Set("abci_transport", cfg.ABCITransport)

			cfgPath := filepath.Join(home, "config.toml")
			v.SetConfigFile(cfgPath)
			if err := v.WriteConfigAs(cfgPath); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			loaded, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			rewardPerWh, ok := loaded.RewardPerWhWeiInt()
			if !ok {
				return fmt.Errorf("invalid reward_per_wh_wei in config")
			}
			minStake, ok := loaded.MinStakeInt()
			if !ok {
				return fmt.Errorf("invalid min_stake in config")
			}

			params := state.Params{
				QuorumBps:              loaded.QuorumBps,
				ClaimWindowSeconds:     loaded.ClaimWindowSeconds,
				RewardPerWhWei:         rewardPerWh,
				SlashBps:               loaded.SlashBps,
				FaultThreshold:         loaded.FaultThreshold,
				MinStake:               minStake,
				PermissionedMode:       loaded.PermissionedMode,
				BaselineMode:           loaded.BaselineMode,
				SlashingDisabled:       loaded.SlashingDisabled,
				SingleVerifierOverride: loaded.SingleVerifierOverride,
				Admin:                  admin,
			}
			if err := params.Validate(); err != nil {
				return err
			}

			st := state.NewStateWithParams(params)
			st.ChainID = loaded.ChainID
			st.Treasury.Fund(new(big.Int).Mul(big.NewInt(1_000_000), rewardPerWh))

			appHome := filepath.Join(home, "app")
			if err := st.Save(appHome); err != nil {
				return fmt.Errorf("save genesis state: %w", err)
			}

			cmd.Printf("initialized %s (admin=%s)\n", home, admin)
			return nil
		},
	}

	cmd.Flags().StringVar(&admin, "admin", "", "privileged admin address")
	cmd.Flags().StringVar(&baselineVerifier, "baseline-verifier", "", "enable baseline mode with this single-verifier override address")
	return cmd
}
